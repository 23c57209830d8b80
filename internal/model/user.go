package model

type UserRole string

const (
	Student    UserRole = "student"
	Instructor UserRole = "instructor"
)

func (r UserRole) Valid() bool {
	return r == Student || r == Instructor
}

// swagger:model User
type User struct {
	BaseModel
	Name        string   `gorm:"size:150;not null" json:"name"`
	Email       string   `gorm:"size:191;uniqueIndex;not null" json:"email"`
	Password    string   `gorm:"size:100;not null" json:"-"`
	Role        UserRole `gorm:"size:20;not null;default:'student'" json:"role"`
	Bio         string   `gorm:"type:text" json:"bio"`
	IsStaff     bool     `gorm:"default:false" json:"isStaff"`
	IsSuperuser bool     `gorm:"default:false" json:"isSuperuser"`
}

func (User) TableName() string {
	return "users"
}
