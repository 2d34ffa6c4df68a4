package store

import "github.com/google/uuid"

type Role string

const (
	RoleMember    Role = "member"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
	RoleOwner     Role = "owner"
)

// Level returns the role's position in the strict ordering
// Member < Moderator < Admin < Owner.
func (r Role) Level() int {
	switch r {
	case RoleOwner:
		return 3
	case RoleAdmin:
		return 2
	case RoleModerator:
		return 1
	default:
		return 0
	}
}

type User struct {
	ID           uuid.UUID
	Username     string
	Email        string
	PasswordHash string
	Role         Role
	AvatarPath   *string
	DisplayName  *string
	CreatedAt    int64
}

type ChannelType string

const (
	ChannelText  ChannelType = "text"
	ChannelVoice ChannelType = "voice"
)

type Channel struct {
	ID          uuid.UUID
	Name        string
	ChannelType ChannelType
	CreatedBy   *uuid.UUID
	CreatedAt   int64
}

type Message struct {
	ID             uuid.UUID
	Content        string
	AuthorID       uuid.UUID
	AuthorUsername string
	ChannelID      uuid.UUID
	CreatedAt      int64
	EditedAt       *int64
	ReplyToID      *uuid.UUID

	ReplyTo        *ReplyPreview
	Reactions      []Reaction
	LinkPreviews   []LinkPreview
	Attachments    []Attachment
}

type ReplyPreview struct {
	ID      uuid.UUID
	Author  string
	Content string
}

type Reaction struct {
	Emoji    string
	Count    int64
	Reacted  bool
}

type LinkPreview struct {
	ID          uuid.UUID
	URL         string
	Title       *string
	Description *string
	ImageURL    *string
	SiteName    *string
	FetchedAt   int64
}

type Attachment struct {
	ID          uuid.UUID
	Filename    string
	ContentType string
	Size        int64
	StoragePath string
	UploaderID  uuid.UUID
	MessageID   *uuid.UUID
	CreatedAt   int64
}

type Ban struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	BannedBy  uuid.UUID
	Reason    *string
	ExpiresAt *int64
	CreatedAt int64
}

type Mute struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	MutedBy   uuid.UUID
	Reason    *string
	ExpiresAt *int64
	CreatedAt int64
}

type Invite struct {
	ID        uuid.UUID
	Code      string
	CreatedBy uuid.UUID
	MaxUses   *int64
	Uses      int64
	ExpiresAt *int64
	Revoked   bool
	CreatedAt int64
}

type ModLogAction string

const (
	ActionKick       ModLogAction = "kick"
	ActionBan        ModLogAction = "ban"
	ActionUnban      ModLogAction = "unban"
	ActionMute       ModLogAction = "mute"
	ActionUnmute     ModLogAction = "unmute"
	ActionRoleChange ModLogAction = "role_change"
)

type ModLogEntry struct {
	ID           uuid.UUID
	Action       ModLogAction
	ModeratorID  uuid.UUID
	TargetUserID uuid.UUID
	Reason       *string
	Details      *string
	CreatedAt    int64
}

type CustomEmoji struct {
	ID          uuid.UUID
	Name        string
	ContentType string
	StoragePath string
	UploaderID  uuid.UUID
	CreatedAt   int64
}

type SoundboardSound struct {
	ID          uuid.UUID
	Name        string
	StoragePath string
	DurationMS  int64
	UploaderID  uuid.UUID
	CreatedAt   int64
}

type Passkey struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	CredentialName string
	CredentialID   string
	CredentialJSON string
	CreatedAt      int64
	LastUsedAt     *int64
}

type UserSummary struct {
	ID         uuid.UUID
	Username   string
	Email      string
	Role       Role
	CreatedAt  int64
	AvatarURL  *string
}
