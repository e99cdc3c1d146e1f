package dto

type CreateUserDTO struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Name     string `json:"name" binding:"required"`
	Role     string `json:"role" binding:"omitempty,oneof=USER ADMIN user admin"`
	Avatar   string `json:"avatar" binding:"omitempty,url"`
}

// UpdateUserDTO: all fields are optional pointers
type UpdateUserDTO struct {
	Email    *string `json:"email,omitempty" binding:"omitempty,email"`
	Password *string `json:"password,omitempty" binding:"omitempty,min=6"`
	Name     *string `json:"name,omitempty" binding:"omitempty,min=1"`
	Role     *string `json:"role,omitempty" binding:"omitempty,oneof=USER ADMIN user admin"`
	Avatar   *string `json:"avatar,omitempty"`
}

type UpdateProfileDTO struct {
	Name   *string `json:"name,omitempty" binding:"omitempty,min=1"`
	Avatar *string `json:"avatar,omitempty"`
}

// ChangeMyPasswordDTO is the body of POST /users/profile/password.
type ChangeMyPasswordDTO struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,min=6"`
}

// ListUsersQuery is bound from the query string of GET /users.
type ListUsersQuery struct {
	Search string `form:"search"`
	Page   string `form:"page"`
	Limit  string `form:"limit"`
}
