package car

import "time"

// Registered is raised when a car enters the fleet.
type Registered struct {
	Plate   string `json:"plate"`
	Make    string `json:"make"`
	Model   string `json:"model"`
	Year    int    `json:"year"`
	Mileage int64  `json:"mileage"`
}

func (Registered) EventName() string { return "CarRegistered" }

// MileageRecorded carries a new odometer reading.
type MileageRecorded struct {
	Mileage int64 `json:"mileage"`
}

func (MileageRecorded) EventName() string { return "CarMileageRecorded" }

// OwnerAssigned links the car to a customer.
type OwnerAssigned struct {
	CustomerID string `json:"customerId"`
}

func (OwnerAssigned) EventName() string { return "CarOwnerAssigned" }

// Deleted marks the car as removed. The history is kept.
type Deleted struct {
	At time.Time `json:"at"`
}

func (Deleted) EventName() string { return "CarDeleted" }
