package sync

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/raptchat/rapt/internal/bus"
	"github.com/raptchat/rapt/internal/device"
	"github.com/raptchat/rapt/internal/raptapi"
	"github.com/raptchat/rapt/internal/store"
)

// ContactsAPI is the contact surface of the Rapt API.
type ContactsAPI interface {
	Contacts(ctx context.Context, token, userID string) ([]raptapi.Contact, error)
	AddContacts(ctx context.Context, token, userID string, batch []raptapi.ContactUpload) ([]raptapi.Contact, error)
	UpdateContact(ctx context.Context, token, userID string, upd raptapi.ContactUpdate) (*raptapi.Contact, error)
}

// ContactReport is the outcome of a contact sync pass. Contacts is always
// the local list; Err is set when the pass degraded to the cache.
type ContactReport struct {
	Contacts []store.Contact
	Uploaded int
	Inserted int
	Updated  int
	Err      error
}

// ContactsSynced is the payload of contacts.synced.
type ContactsSynced struct {
	Uploaded int `json:"uploaded"`
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Total    int `json:"total"`
}

// ContactEngine merges device contacts, remote contact records and the
// local cache, keyed by phone.
type ContactEngine struct {
	db      *store.DB
	api     ContactsAPI
	auth    Credentials
	device  device.Source
	bus     *bus.Bus
	metrics Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewContactEngine creates a ContactEngine.
func NewContactEngine(db *store.DB, api ContactsAPI, auth Credentials, src device.Source, b *bus.Bus, m Metrics, logger *zap.Logger) *ContactEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContactEngine{
		db:      db,
		api:     api,
		auth:    auth,
		device:  src,
		bus:     b,
		metrics: orNop(m),
		logger:  logger,
		now:     time.Now,
	}
}

// Sync runs one pass. It never fails: on error the cached list is returned
// with Err set.
func (e *ContactEngine) Sync(ctx context.Context) ContactReport {
	start := e.now()
	rep, err := e.sync(ctx)
	e.metrics.ObserveSync(EngineContacts, err == nil, e.now().Sub(start))
	if err == nil {
		e.logger.Info("contacts synced",
			zap.Int("uploaded", rep.Uploaded),
			zap.Int("inserted", rep.Inserted),
			zap.Int("updated", rep.Updated),
		)
		e.bus.Emit(bus.KindContactsSynced, ContactsSynced{
			Uploaded: rep.Uploaded, Inserted: rep.Inserted, Updated: rep.Updated, Total: len(rep.Contacts),
		})
		return rep
	}

	e.logger.Warn("contact sync failed, serving cache", zap.Error(err))
	e.bus.Emit(bus.KindContactsFailed, err.Error())
	local, lerr := e.db.ListContacts()
	if lerr != nil {
		e.logger.Error("list cached contacts", zap.Error(lerr))
	}
	return ContactReport{Contacts: local, Err: err}
}

func (e *ContactEngine) sync(ctx context.Context) (ContactReport, error) {
	var rep ContactReport

	cred, err := e.auth.Require(ctx)
	if err != nil {
		return rep, err
	}
	var onDevice []device.Contact
	if e.device != nil {
		if onDevice, err = e.device.Contacts(ctx); err != nil {
			return rep, fmt.Errorf("device contacts: %w", err)
		}
	}
	remote, err := e.api.Contacts(ctx, cred.AccessToken, cred.UserID)
	if err != nil {
		return rep, fmt.Errorf("fetch remote contacts: %w", err)
	}

	known := make(map[string]bool, len(remote))
	for _, rc := range remote {
		known[rc.Phone] = true
	}
	var upload []raptapi.ContactUpload
	for _, dc := range onDevice {
		if known[dc.Phone] {
			continue
		}
		known[dc.Phone] = true
		upload = append(upload, raptapi.ContactUpload{Phone: dc.Phone, Name: dc.Name})
	}
	if len(upload) > 0 {
		created, err := e.api.AddContacts(ctx, cred.AccessToken, cred.UserID, upload)
		if err != nil {
			return rep, fmt.Errorf("upload contacts: %w", err)
		}
		rep.Uploaded = len(upload)
		remote = append(remote, created...)
	}

	seen := make(map[string]bool, len(remote))
	for _, rc := range remote {
		if rc.Phone == "" || seen[rc.Phone] {
			continue
		}
		seen[rc.Phone] = true
		inserted, updated, err := e.merge(rc, cred.UserID)
		if err != nil {
			return rep, err
		}
		if inserted {
			rep.Inserted++
		}
		if updated {
			rep.Updated++
		}
	}

	if err := e.db.SetCheckpoint(store.CheckpointContactsSync, strconv.FormatInt(e.now().UnixMilli(), 10)); err != nil {
		return rep, fmt.Errorf("checkpoint: %w", err)
	}
	if rep.Contacts, err = e.db.ListContacts(); err != nil {
		return rep, fmt.Errorf("list contacts: %w", err)
	}
	return rep, nil
}

// merge inserts rc if its phone is not cached, else updates the cached row
// in place when its remote metadata changed.
func (e *ContactEngine) merge(rc raptapi.Contact, selfID string) (inserted, updated bool, err error) {
	local, err := e.db.GetContactByPhone(rc.Phone)
	if err != nil {
		return false, false, fmt.Errorf("lookup %s: %w", rc.Phone, err)
	}
	owner := rc.UserID
	if owner == "" {
		owner = selfID
	}
	if local == nil {
		c := &store.Contact{
			Name:      rc.Name,
			Phone:     rc.Phone,
			ContactID: rc.ContactID,
			UserID:    owner,
			IsActive:  rc.IsActive,
		}
		if err := e.db.InsertContact(c); err != nil {
			return false, false, fmt.Errorf("insert %s: %w", rc.Phone, err)
		}
		return true, false, nil
	}

	if local.Name == rc.Name && local.ContactID == rc.ContactID && local.IsActive == rc.IsActive && local.UserID == owner {
		return false, false, nil
	}
	local.Name = rc.Name
	local.ContactID = rc.ContactID
	local.UserID = owner
	local.IsActive = rc.IsActive
	if err := e.db.UpdateContact(local); err != nil {
		return false, false, fmt.Errorf("update %s: %w", rc.Phone, err)
	}
	return false, true, nil
}

// Search matches a substring against cached names and phones.
func (e *ContactEngine) Search(query string) ([]store.Contact, error) {
	return e.db.SearchContacts(query)
}

// ErrContactNotFound is returned by Delete for an unknown local id.
var ErrContactNotFound = errors.New("contact not found")

// Delete removes a cached contact. Remote records are left alone.
func (e *ContactEngine) Delete(id int64) error {
	ok, err := e.db.DeleteContact(id)
	if err != nil {
		return fmt.Errorf("delete contact %d: %w", id, err)
	}
	if !ok {
		return ErrContactNotFound
	}
	return nil
}

// UpdateRemote pushes a contact change to the server and mirrors the
// returned record locally.
func (e *ContactEngine) UpdateRemote(ctx context.Context, upd raptapi.ContactUpdate) (*raptapi.Contact, error) {
	cred, err := e.auth.Require(ctx)
	if err != nil {
		return nil, err
	}
	rc, err := e.api.UpdateContact(ctx, cred.AccessToken, cred.UserID, upd)
	if err != nil {
		return nil, fmt.Errorf("update remote contact: %w", err)
	}
	if rc.Phone != "" {
		if _, _, err := e.merge(*rc, cred.UserID); err != nil {
			return nil, err
		}
	}
	return rc, nil
}
