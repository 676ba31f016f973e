package models

import "time"

type Role string

const (
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleSysAdmin   Role = "SYS_ADMIN"
	RoleEngineer   Role = "ENGINEER"
)

// SuperAdminUsername is the seeded top-role identity.
const SuperAdminUsername = "super_admin"

func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleSysAdmin, RoleEngineer:
		return true
	}
	return false
}

func (r Role) Label() string {
	switch r {
	case RoleSuperAdmin:
		return "Super Administrator"
	case RoleSysAdmin:
		return "System Administrator"
	case RoleEngineer:
		return "Service Engineer"
	}
	return string(r)
}

type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         Role
	FirstName    string
	LastName     string
	RegisteredAt time.Time
}

// UserProfilePatch carries the optional profile fields of a partial update.
// Nil fields are left untouched.
type UserProfilePatch struct {
	FirstName *string
	LastName  *string
}

func (p UserProfilePatch) Empty() bool {
	return p.FirstName == nil && p.LastName == nil
}

// CurrentUser is the authenticated identity handed back by login and passed to
// every gated operation.
type CurrentUser struct {
	ID       int64
	Username string
	Role     Role
}

type RestoreCode struct {
	ID              int64
	BackupName      string
	GrantedToUserID int64
	CodeHash        string
	Used            bool
	CreatedAt       time.Time
	UsedAt          *time.Time
}

type LogWatermark struct {
	UserID      int64
	LastSeenSeq int64
}

type SecurityLogEntry struct {
	Seq        int64             `json:"seq"`
	Timestamp  time.Time         `json:"ts"`
	Actor      string            `json:"user"`
	Event      string            `json:"event"`
	Details    map[string]string `json:"details"`
	Suspicious bool              `json:"suspicious"`
}

type BackupInfo struct {
	Name      string
	CreatedAt time.Time
	Size      int64
}

type Traveller struct {
	ID           int64
	CustomerID   string
	FirstName    string
	LastName     string
	Birthday     string
	Gender       string
	Street       string
	HouseNumber  string
	ZipCode      string
	City         string
	Email        string
	Phone        string
	License      string
	RegisteredAt time.Time
}

type ScooterStatus string

const (
	ScooterActive      ScooterStatus = "active"
	ScooterMaintenance ScooterStatus = "maintenance"
	ScooterRetired     ScooterStatus = "retired"
)

type Scooter struct {
	ID                  int64
	Brand               string
	Model               string
	SerialNumber        string
	TopSpeed            int
	BatteryCapacity     int
	SOC                 int
	TargetSOCMin        int
	TargetSOCMax        int
	Latitude            float64
	Longitude           float64
	OutOfService        bool
	Mileage             int
	LastMaintenanceDate string
	InServiceDate       string
	Status              ScooterStatus
}

// ScooterPatch is a typed partial update; only non-nil fields are written.
type ScooterPatch struct {
	SOC                 *int
	TargetSOCMin        *int
	TargetSOCMax        *int
	Latitude            *float64
	Longitude           *float64
	OutOfService        *bool
	Mileage             *int
	LastMaintenanceDate *string
	Status              *ScooterStatus
}

func (p ScooterPatch) Empty() bool {
	return p.SOC == nil && p.TargetSOCMin == nil && p.TargetSOCMax == nil &&
		p.Latitude == nil && p.Longitude == nil && p.OutOfService == nil &&
		p.Mileage == nil && p.LastMaintenanceDate == nil && p.Status == nil
}
