// Package media coordinates file bytes on disk with metadata rows in
// sqlite for attachments, avatars, custom emoji, and soundboard
// sounds. Attachments, avatars and custom emoji each get their own
// content-type allowlist and size cap from internal/validation;
// soundboard sounds have no content-type check and use the attachment
// size cap. Storage itself is shared.
package media

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/iohzrd/echora/internal/apperror"
	"github.com/iohzrd/echora/internal/store"
	"github.com/iohzrd/echora/internal/validation"
)

// ObjectStore persists opaque blob bytes under a disk-name key.
// Store's Go-native local implementation is below; a future object
// storage backend would implement the same interface without
// touching any caller.
type ObjectStore interface {
	Put(ctx context.Context, diskName string, r io.Reader) (size int64, err error)
	Open(ctx context.Context, diskName string) (io.ReadCloser, error)
	Remove(ctx context.Context, diskName string) error
}

// LocalDisk stores blobs as opaquely-named files under a root
// directory, grounded on the reference blob store's temp-file-then-
// rename write path.
type LocalDisk struct {
	rootDir string
}

func NewLocalDisk(rootDir string) (*LocalDisk, error) {
	if rootDir == "" {
		return nil, fmt.Errorf("media root directory is required")
	}
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("create media directory: %w", err)
	}
	return &LocalDisk{rootDir: rootDir}, nil
}

func (d *LocalDisk) Put(ctx context.Context, diskName string, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(d.rootDir, ".media-write-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	size, copyErr := io.Copy(tmp, r)
	closeErr := tmp.Close()
	if copyErr != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("write bytes: %w", copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("close temp file: %w", closeErr)
	}

	finalPath := filepath.Join(d.rootDir, diskName)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("move into place: %w", err)
	}
	return size, nil
}

func (d *LocalDisk) Open(ctx context.Context, diskName string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(d.rootDir, diskName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperror.NotFoundf("File not found")
		}
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

func (d *LocalDisk) Remove(ctx context.Context, diskName string) error {
	if err := os.Remove(filepath.Join(d.rootDir, diskName)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

// S3Stub satisfies ObjectStore for STORAGE_BACKEND=s3 configurations
// without importing an AWS SDK: the pack never retrieved a complete
// S3 client example to ground one on, so this reports a clear
// unimplemented error instead of wiring an ungrounded dependency.
type S3Stub struct {
	Bucket string
	Region string
}

func (s *S3Stub) Put(ctx context.Context, diskName string, r io.Reader) (int64, error) {
	return 0, fmt.Errorf("S3 object storage is not implemented (bucket %q, region %q); use STORAGE_BACKEND=local", s.Bucket, s.Region)
}

func (s *S3Stub) Open(ctx context.Context, diskName string) (io.ReadCloser, error) {
	return nil, fmt.Errorf("S3 object storage is not implemented (bucket %q, region %q); use STORAGE_BACKEND=local", s.Bucket, s.Region)
}

func (s *S3Stub) Remove(ctx context.Context, diskName string) error {
	return fmt.Errorf("S3 object storage is not implemented (bucket %q, region %q); use STORAGE_BACKEND=local", s.Bucket, s.Region)
}

// Service validates and stores uploaded attachment/avatar/emoji/
// soundboard bytes, recording metadata in the sqlite store.
type Service struct {
	objects ObjectStore
	store   *store.Store
}

func New(objects ObjectStore, st *store.Store) *Service {
	return &Service{objects: objects, store: st}
}

func randomDiskName() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// UploadAttachment validates content type and size, stores the bytes,
// and records an orphan attachment row (message_id is set later by
// the message pipeline once the message is created).
func (s *Service) UploadAttachment(ctx context.Context, uploaderID uuid.UUID, filename, contentType string, size int64, r io.Reader) (*store.Attachment, error) {
	filename, err := validation.ValidateFilename(filename)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateAttachmentContentType(contentType); err != nil {
		return nil, err
	}
	if size > validation.MaxAttachmentSize {
		return nil, apperror.BadRequestf("File exceeds the maximum attachment size")
	}

	diskName, err := randomDiskName()
	if err != nil {
		return nil, apperror.Internalf(err, "generate disk name")
	}
	written, err := s.objects.Put(ctx, diskName, io.LimitReader(r, validation.MaxAttachmentSize+1))
	if err != nil {
		return nil, apperror.Internalf(err, "store attachment bytes")
	}
	if written > validation.MaxAttachmentSize {
		_ = s.objects.Remove(ctx, diskName)
		return nil, apperror.BadRequestf("File exceeds the maximum attachment size")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, apperror.Internalf(err, "generate attachment id")
	}
	a := &store.Attachment{
		ID: id, Filename: filename, ContentType: contentType,
		Size: written, StoragePath: diskName, UploaderID: uploaderID,
	}
	if err := s.store.CreateAttachment(ctx, a); err != nil {
		_ = s.objects.Remove(ctx, diskName)
		return nil, err
	}
	slog.Info("attachment uploaded", "attachment_id", id, "size", written, "content_type", contentType)
	return a, nil
}

// OpenAttachment returns the byte stream for a previously uploaded
// attachment so a handler can stream it back to the client.
func (s *Service) OpenAttachment(ctx context.Context, id uuid.UUID) (*store.Attachment, io.ReadCloser, error) {
	a, err := s.store.GetAttachmentByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	f, err := s.objects.Open(ctx, a.StoragePath)
	if err != nil {
		return nil, nil, err
	}
	return a, f, nil
}

// UploadAvatar replaces the caller's avatar, removing any previous
// file once the new one is durably stored.
func (s *Service) UploadAvatar(ctx context.Context, userID uuid.UUID, contentType string, size int64, r io.Reader) (string, error) {
	if err := validation.ValidateAvatarContentType(contentType); err != nil {
		return "", err
	}
	if size > validation.MaxAvatarSize {
		return "", apperror.BadRequestf("Avatar exceeds the maximum size")
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return "", err
	}

	diskName, err := randomDiskName()
	if err != nil {
		return "", apperror.Internalf(err, "generate disk name")
	}
	written, err := s.objects.Put(ctx, diskName, io.LimitReader(r, validation.MaxAvatarSize+1))
	if err != nil {
		return "", apperror.Internalf(err, "store avatar bytes")
	}
	if written > validation.MaxAvatarSize {
		_ = s.objects.Remove(ctx, diskName)
		return "", apperror.BadRequestf("Avatar exceeds the maximum size")
	}

	if err := s.store.UpdateUserAvatar(ctx, userID, &diskName); err != nil {
		_ = s.objects.Remove(ctx, diskName)
		return "", err
	}
	if user.AvatarPath != nil && *user.AvatarPath != "" {
		_ = s.objects.Remove(ctx, *user.AvatarPath)
	}
	return diskName, nil
}

// OpenAvatar returns the byte stream for a user's current avatar.
func (s *Service) OpenAvatar(ctx context.Context, userID uuid.UUID) (io.ReadCloser, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.AvatarPath == nil || *user.AvatarPath == "" {
		return nil, apperror.NotFoundf("User has no avatar")
	}
	return s.objects.Open(ctx, *user.AvatarPath)
}

// CreateCustomEmoji validates and stores a server-wide emoji image.
func (s *Service) CreateCustomEmoji(ctx context.Context, uploaderID uuid.UUID, name, contentType string, size int64, r io.Reader) (*store.CustomEmoji, error) {
	name, err := validation.ValidateEmojiName(name)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateEmojiContentType(contentType); err != nil {
		return nil, err
	}
	if size > validation.MaxCustomEmojiSize {
		return nil, apperror.BadRequestf("Emoji image exceeds the maximum size")
	}

	diskName, err := randomDiskName()
	if err != nil {
		return nil, apperror.Internalf(err, "generate disk name")
	}
	written, err := s.objects.Put(ctx, diskName, io.LimitReader(r, validation.MaxCustomEmojiSize+1))
	if err != nil {
		return nil, apperror.Internalf(err, "store emoji bytes")
	}
	if written > validation.MaxCustomEmojiSize {
		_ = s.objects.Remove(ctx, diskName)
		return nil, apperror.BadRequestf("Emoji image exceeds the maximum size")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, apperror.Internalf(err, "generate emoji id")
	}
	e := &store.CustomEmoji{ID: id, Name: name, ContentType: contentType, StoragePath: diskName, UploaderID: uploaderID}
	if err := s.store.CreateCustomEmoji(ctx, e); err != nil {
		_ = s.objects.Remove(ctx, diskName)
		return nil, err
	}
	return e, nil
}

// OpenCustomEmoji returns the byte stream for a stored emoji image.
func (s *Service) OpenCustomEmoji(ctx context.Context, id uuid.UUID) (*store.CustomEmoji, io.ReadCloser, error) {
	e, err := s.store.GetCustomEmojiByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	f, err := s.objects.Open(ctx, e.StoragePath)
	if err != nil {
		return nil, nil, err
	}
	return e, f, nil
}

// CreateSoundboardSound validates and stores a soundboard clip.
// durationMS is supplied by the caller (the client measures playback
// length client-side; the server does not decode audio).
func (s *Service) CreateSoundboardSound(ctx context.Context, uploaderID uuid.UUID, name string, durationMS int64, contentType string, size int64, r io.Reader) (*store.SoundboardSound, error) {
	name, err := validation.ValidateEmojiName(name)
	if err != nil {
		return nil, err
	}
	if size > validation.MaxAttachmentSize {
		return nil, apperror.BadRequestf("Sound exceeds the maximum size")
	}

	diskName, err := randomDiskName()
	if err != nil {
		return nil, apperror.Internalf(err, "generate disk name")
	}
	written, err := s.objects.Put(ctx, diskName, io.LimitReader(r, validation.MaxAttachmentSize+1))
	if err != nil {
		return nil, apperror.Internalf(err, "store sound bytes")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, apperror.Internalf(err, "generate sound id")
	}
	snd := &store.SoundboardSound{ID: id, Name: name, StoragePath: diskName, DurationMS: durationMS, UploaderID: uploaderID}
	if err := s.store.CreateSoundboardSound(ctx, snd); err != nil {
		_ = s.objects.Remove(ctx, diskName)
		return nil, err
	}
	_ = written
	return snd, nil
}

// OpenSoundboardSound returns the byte stream for a stored sound.
func (s *Service) OpenSoundboardSound(ctx context.Context, id uuid.UUID) (*store.SoundboardSound, io.ReadCloser, error) {
	snd, err := s.store.GetSoundboardSoundByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	f, err := s.objects.Open(ctx, snd.StoragePath)
	if err != nil {
		return nil, nil, err
	}
	return snd, f, nil
}
