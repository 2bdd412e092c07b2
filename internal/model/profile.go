package model

import "time"

// Profile はprofilesテーブルの1行を表す。IDはIdentity.IDと一致する。
type Profile struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	FullName  *string   `json:"fullName"`
	AvatarURL *string   `json:"avatarUrl"`
	Bio       *string   `json:"bio"`
	Location  *string   `json:"location"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ProfileUpdate はプロフィールの部分更新内容を表す。
// nilのフィールドは変更しない。
type ProfileUpdate struct {
	Username  *string `json:"username,omitempty"`
	FullName  *string `json:"fullName,omitempty"`
	AvatarURL *string `json:"avatarUrl,omitempty"`
	Bio       *string `json:"bio,omitempty"`
	Location  *string `json:"location,omitempty"`
}

// IsEmpty は更新対象のフィールドが1つもないかどうかを返す。
func (u ProfileUpdate) IsEmpty() bool {
	return u.Username == nil && u.FullName == nil && u.AvatarURL == nil && u.Bio == nil && u.Location == nil
}

// Apply は更新内容をプロフィールに反映する。
func (u ProfileUpdate) Apply(p *Profile) {
	if u.Username != nil {
		p.Username = *u.Username
	}
	if u.FullName != nil {
		p.FullName = u.FullName
	}
	if u.AvatarURL != nil {
		p.AvatarURL = u.AvatarURL
	}
	if u.Bio != nil {
		p.Bio = u.Bio
	}
	if u.Location != nil {
		p.Location = u.Location
	}
}

// StringPtr は文字列のポインタを返す。
func StringPtr(s string) *string {
	return &s
}
