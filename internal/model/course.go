package model

// swagger:model Course
type Course struct {
	BaseModel
	Code        string `gorm:"size:50;uniqueIndex" json:"code"`
	Title       string `gorm:"size:255;not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`
	TeacherID   uint   `gorm:"index" json:"teacherId"`
	IsActive    bool   `json:"isActive"`
}

func (Course) TableName() string {
	return "courses"
}
