package models

type Account struct {
	BaseModel

	Name     string `json:"name" gorm:"uniqueIndex"`
	Nick     string `json:"nick"`
	Email    string `json:"email" gorm:"uniqueIndex"`
	Password string `json:"-"`

	Calls         []Call         `json:"calls,omitempty"`
	Subscriptions []Subscription `json:"subscriptions,omitempty"`
}

func (v Account) DisplayName() string {
	if len(v.Nick) > 0 {
		return v.Nick
	}
	return v.Name
}
