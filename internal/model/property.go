package model

import "time"

// Property statuses.
const (
	PropertyActive   = "active"
	PropertyInactive = "inactive"
	PropertyArchived = "archived"
)

// Property is an insured physical asset identified by its serial number.
type Property struct {
	ID           string           `json:"id" bson:"_id"`
	SerialNumber string           `json:"serial_number" bson:"serial_number"`
	Name         string           `json:"name" bson:"name"`
	Description  string           `json:"description,omitempty" bson:"description,omitempty"`
	Category     string           `json:"category,omitempty" bson:"category,omitempty"`
	Location     string           `json:"location,omitempty" bson:"location,omitempty"`
	Status       string           `json:"status" bson:"status"`
	Metadata     PropertyMetadata `json:"metadata" bson:"metadata"`
	CreatedAt    time.Time        `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at" bson:"updated_at"`
}

// PropertyMetadata holds the station details captured by the registration form.
type PropertyMetadata struct {
	Company        string  `json:"company,omitempty" bson:"company,omitempty"`
	BusinessType   string  `json:"businessType,omitempty" bson:"business_type,omitempty"`
	StationType    string  `json:"stationType,omitempty" bson:"station_type,omitempty"`
	RiskLevel      string  `json:"riskLevel,omitempty" bson:"risk_level,omitempty"`
	BusinessNature string  `json:"businessNature,omitempty" bson:"business_nature,omitempty"`
	Address        Address `json:"address" bson:"address"`
}

// Address is a structured postal address.
type Address struct {
	Province string `json:"province,omitempty" bson:"province,omitempty"`
	City     string `json:"city,omitempty" bson:"city,omitempty"`
	District string `json:"district,omitempty" bson:"district,omitempty"`
	Detail   string `json:"detail,omitempty" bson:"detail,omitempty"`
}

// PropertyForm is the create/edit input submitted by clients.
type PropertyForm struct {
	Name           string `json:"name"`
	Company        string `json:"company"`
	BusinessType   string `json:"businessType"`
	StationType    string `json:"stationType"`
	RiskLevel      string `json:"riskLevel"`
	BusinessNature string `json:"businessNature"`
	SerialCode     string `json:"serialCode"`
	Province       string `json:"province"`
	City           string `json:"city"`
	District       string `json:"district"`
	Address        string `json:"address"`
}

// PropertyUpdate is a partial form; nil fields are left unchanged.
type PropertyUpdate struct {
	Name           *string `json:"name,omitempty"`
	Company        *string `json:"company,omitempty"`
	BusinessType   *string `json:"businessType,omitempty"`
	StationType    *string `json:"stationType,omitempty"`
	RiskLevel      *string `json:"riskLevel,omitempty"`
	BusinessNature *string `json:"businessNature,omitempty"`
	SerialCode     *string `json:"serialCode,omitempty"`
	Province       *string `json:"province,omitempty"`
	City           *string `json:"city,omitempty"`
	District       *string `json:"district,omitempty"`
	Address        *string `json:"address,omitempty"`
	Status         *string `json:"status,omitempty"`
}
