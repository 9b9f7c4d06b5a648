package models

func WithDisplayName(name string) UserOption {
	return func(u *User) { u.Profile.DisplayName = name }
}

func WithBio(bio string) UserOption {
	return func(u *User) { u.Profile.Bio = bio }
}

func WithAvatarURL(url string) UserOption {
	return func(u *User) { u.Profile.AvatarURL = url }
}

// WithIsActive activates the account and marks the email verified.
func WithIsActive(active bool) UserOption {
	return func(u *User) { u.IsActive = active; u.IsEmailVerified = active }
}
