package models

type UserRole string

const (
	UserRoleSuperadmin UserRole = "superadmin"
	UserRoleUser       UserRole = "user"
)

func (r UserRole) Valid() bool {
	return r == UserRoleSuperadmin || r == UserRoleUser
}

type User struct {
	BaseModel
	Name         string   `json:"name" gorm:"type:varchar(100);uniqueIndex;not null"`
	PasswordHash string   `json:"-" gorm:"type:text;not null"`
	Role         UserRole `json:"role" gorm:"type:varchar(20);not null;default:'user'"`
	Devices      []Device `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

// FindDevice returns the device with the given id, if the user owns one.
func (u *User) FindDevice(deviceID string) *Device {
	if deviceID == "" {
		return nil
	}
	for i := range u.Devices {
		if u.Devices[i].DeviceID.String() == deviceID {
			return &u.Devices[i]
		}
	}
	return nil
}

// FindDeviceByName returns the first device carrying name.
func (u *User) FindDeviceByName(name string) *Device {
	if name == "" {
		return nil
	}
	for i := range u.Devices {
		if u.Devices[i].DeviceName == name {
			return &u.Devices[i]
		}
	}
	return nil
}
