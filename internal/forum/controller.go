package forum

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pders01/foro/internal/debuglog"
	"github.com/pders01/foro/internal/device"
	"github.com/pders01/foro/internal/feed"
	"github.com/pders01/foro/internal/joke"
	"github.com/pders01/foro/internal/media"
	"github.com/pders01/foro/internal/storage"
	"github.com/pders01/foro/internal/validation"
)

var (
	ErrNoUser       = errors.New("no authenticated user")
	ErrNotAvailable = errors.New("capability not configured")
)

const (
	fallbackName = "no email"
	avatarURL    = "https://i.pravatar.cc/150?img=%d"
	avatarCount  = 70
)

// Author is the snapshot of the signed-in user stamped on every post.
type Author struct {
	ID       string
	Name     string
	PhotoURL string
}

// NewAuthor fills in the display fallbacks: a missing name becomes
// "no email" and a missing photo a random avatar.
func NewAuthor(id, name, photoURL string) Author {
	name = strings.TrimSpace(name)
	if name == "" {
		name = fallbackName
	}
	if photoURL == "" {
		photoURL = RandomAvatar()
	}
	return Author{ID: strings.TrimSpace(id), Name: name, PhotoURL: photoURL}
}

// RandomAvatar picks one of the placeholder avatars.
func RandomAvatar() string {
	return fmt.Sprintf(avatarURL, rand.IntN(avatarCount)+1)
}

// Locator resolves the device position for a platform.
type Locator interface {
	Locate(ctx context.Context, platform device.Platform) (device.Position, error)
}

// JokeSource returns a random joke.
type JokeSource interface {
	Random(ctx context.Context) (joke.Joke, error)
}

// Deps are the collaborators a Controller drives. Any of them may be nil;
// the actions needing a missing one fail with ErrNotAvailable.
type Deps struct {
	Uploader    *media.Uploader
	Camera      device.Camera
	Locator     Locator
	Platform    device.Platform
	Jokes       JokeSource
	Attachments *validation.FilePathValidator
	Notifier    Notifier
}

// Controller turns user actions into device, store and cache calls. Every
// failure is logged, shown as a danger toast and returned; nothing is retried.
type Controller struct {
	cache  *feed.Cache
	author Author
	deps   Deps
	now    func() time.Time

	mu      sync.Mutex
	editing bool
	editID  string
	draft   string
}

func NewController(cache *feed.Cache, author Author, deps Deps) *Controller {
	if deps.Notifier == nil {
		deps.Notifier = NopNotifier{}
	}
	if deps.Platform == "" {
		deps.Platform = device.PlatformNative
	}
	return &Controller{
		cache:  cache,
		author: author,
		deps:   deps,
		now:    time.Now,
	}
}

func (c *Controller) Author() Author {
	return c.author
}

func (c *Controller) Cache() *feed.Cache {
	return c.cache
}

// Load refreshes the feed.
func (c *Controller) Load(ctx context.Context) ([]storage.Entry, error) {
	if err := c.requireUser(); err != nil {
		return nil, err
	}
	entries, err := c.cache.Refresh(ctx)
	if err != nil {
		return nil, c.fail("load", MsgLoadFailed, err)
	}
	return entries, nil
}

// PostText publishes text as a new post. Blank text is rejected without a
// toast.
func (c *Controller) PostText(ctx context.Context, text string) (storage.Entry, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return storage.Entry{}, fmt.Errorf("post content is empty")
	}
	if err := c.requireUser(); err != nil {
		return storage.Entry{}, err
	}
	entry, err := c.post(ctx, text)
	if err != nil {
		return storage.Entry{}, c.fail("post", MsgPostFailed, err)
	}
	return entry, nil
}

// Edit replaces the content of post id.
func (c *Controller) Edit(ctx context.Context, id, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("post content is empty")
	}
	if err := c.requireUser(); err != nil {
		return err
	}
	if err := c.cache.Edit(ctx, id, text); err != nil {
		return c.fail("edit", MsgEditFailed, err)
	}
	return nil
}

// BeginEdit switches to edit mode with entry's content as the draft.
func (c *Controller) BeginEdit(entry storage.Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.editing = true
	c.editID = entry.ID
	c.draft = entry.Content
}

func (c *Controller) CancelEdit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.editing, c.editID, c.draft = false, "", ""
}

// Editing returns the id and draft being edited, if any.
func (c *Controller) Editing() (id, draft string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.editID, c.draft, c.editing
}

// Publish edits the entry in edit mode, or posts text otherwise. Blank text
// is ignored. Edit mode ends only when the edit succeeds.
func (c *Controller) Publish(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	id, _, editing := c.Editing()
	if !editing {
		_, err := c.PostText(ctx, text)
		return err
	}

	if err := c.Edit(ctx, id, text); err != nil {
		return err
	}
	c.CancelEdit()
	return nil
}

// SendPhoto captures a photo, uploads it and posts its public URL.
func (c *Controller) SendPhoto(ctx context.Context) (storage.Entry, error) {
	if err := c.requireUser(); err != nil {
		return storage.Entry{}, err
	}
	if c.deps.Camera == nil || c.deps.Uploader == nil {
		return storage.Entry{}, c.fail("photo", MsgPhotoFailed, fmt.Errorf("%w: camera", ErrNotAvailable))
	}

	dataURL, err := c.deps.Camera.Capture(ctx)
	if err != nil {
		return storage.Entry{}, c.fail("photo", MsgPhotoFailed, err)
	}
	fileName := fmt.Sprintf("photo_%d.jpeg", c.now().UnixMilli())
	url, err := c.deps.Uploader.UploadImage(ctx, dataURL, fileName)
	if err != nil {
		return storage.Entry{}, c.fail("photo", MsgPhotoFailed, err)
	}
	entry, err := c.post(ctx, url)
	if err != nil {
		return storage.Entry{}, c.fail("photo", MsgPhotoFailed, err)
	}
	return entry, nil
}

// SendFile uploads the file at path and posts its public URL.
func (c *Controller) SendFile(ctx context.Context, path string) (storage.Entry, error) {
	if err := c.requireUser(); err != nil {
		return storage.Entry{}, err
	}
	if c.deps.Uploader == nil {
		return storage.Entry{}, c.fail("file", MsgFileFailed, fmt.Errorf("%w: uploads", ErrNotAvailable))
	}

	validator := c.deps.Attachments
	if validator == nil {
		validator = validation.NewAttachmentValidator()
	}
	clean, _, err := validator.ValidateAttachment(path)
	if err != nil {
		return storage.Entry{}, c.fail("file", MsgFileFailed, err)
	}
	data, err := os.ReadFile(clean)
	if err != nil {
		return storage.Entry{}, c.fail("file", MsgFileFailed, fmt.Errorf("reading attachment: %w", err))
	}

	url, err := c.deps.Uploader.UploadFile(ctx, filepath.Base(clean), data, "")
	if err != nil {
		return storage.Entry{}, c.fail("file", MsgFileFailed, err)
	}
	entry, err := c.post(ctx, url)
	if err != nil {
		return storage.Entry{}, c.fail("file", MsgFileFailed, err)
	}
	return entry, nil
}

// ShareLocation posts a map link to the current position.
func (c *Controller) ShareLocation(ctx context.Context) (storage.Entry, error) {
	if err := c.requireUser(); err != nil {
		return storage.Entry{}, err
	}
	if c.deps.Locator == nil {
		return storage.Entry{}, c.fail("location", MsgLocationFailed, fmt.Errorf("%w: location", ErrNotAvailable))
	}

	pos, err := c.deps.Locator.Locate(ctx, c.deps.Platform)
	if err != nil {
		msg := MsgLocationFailed
		switch {
		case errors.Is(err, device.ErrPermissionDenied):
			msg = MsgLocationDenied
		case c.deps.Platform == device.PlatformWeb:
			msg = MsgBrowserLocationFailed
		}
		return storage.Entry{}, c.fail("location", msg, err)
	}

	entry, err := c.post(ctx, device.MapURL(pos.Latitude, pos.Longitude))
	if err != nil {
		return storage.Entry{}, c.fail("location", MsgLocationFailed, err)
	}
	c.deps.Notifier.Notify(StatusSuccess, MsgLocationSent)
	return entry, nil
}

// PostJoke fetches a random joke and posts it as "setup - punchline".
func (c *Controller) PostJoke(ctx context.Context) (storage.Entry, error) {
	if err := c.requireUser(); err != nil {
		return storage.Entry{}, err
	}
	if c.deps.Jokes == nil {
		return storage.Entry{}, c.fail("joke", MsgJokeFailed, fmt.Errorf("%w: jokes", ErrNotAvailable))
	}

	j, err := c.deps.Jokes.Random(ctx)
	if err != nil {
		return storage.Entry{}, c.fail("joke", MsgJokeFailed, err)
	}
	entry, err := c.post(ctx, j.Content())
	if err != nil {
		return storage.Entry{}, c.fail("joke", MsgJokeFailed, err)
	}
	return entry, nil
}

func (c *Controller) post(ctx context.Context, content string) (storage.Entry, error) {
	return c.cache.Post(ctx, storage.Entry{
		AuthorID:       c.author.ID,
		AuthorName:     c.author.Name,
		AuthorPhotoURL: c.author.PhotoURL,
		Content:        content,
		CreatedAt:      c.now().UnixMilli(),
	})
}

func (c *Controller) requireUser() error {
	if c.author.ID != "" {
		return nil
	}
	c.deps.Notifier.Notify(StatusError, MsgNoUser)
	return ErrNoUser
}

func (c *Controller) fail(action, message string, err error) error {
	debuglog.WithFields(map[string]any{
		"action": action,
		"user":   c.author.ID,
	}).Errorf("%s: %v", message, err)
	c.deps.Notifier.Notify(StatusError, message)
	return err
}
