package api

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"nodue/internal/attendance"
	"nodue/internal/auth"
	"nodue/internal/store"
)

// AccountStore is the remote account backend.
type AccountStore interface {
	SignUp(ctx context.Context, email, password string) (auth.Account, error)
	SignIn(ctx context.Context, email, password string) (auth.Account, error)
	SaveRefresh(ctx context.Context, id, userID string, expiresAt time.Time) error
	CheckRefresh(ctx context.Context, id, userID string) error
	RevokeRefresh(ctx context.Context, id string) error
}

// Puller reads every remote collection of an account.
type Puller interface {
	Pull(ctx context.Context, userID string) (attendance.Snapshot, error)
}

// SessionStore keeps the signed-in account of this device.
type SessionStore interface {
	LoadSession(ctx context.Context) (*store.Session, error)
	SaveSession(ctx context.Context, s store.Session) error
}

// TokenConfig controls issued tokens.
type TokenConfig struct {
	Issuer     string
	SigningKey string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// AccountHandler serves sign-up, sign-in and manual sync. Accounts and Remote
// are nil when no remote database is configured.
type AccountHandler struct {
	svc      *attendance.Service
	sessions SessionStore
	accounts AccountStore
	remote   Puller
	tokens   TokenConfig
}

func NewAccountHandler(svc *attendance.Service, sessions SessionStore, accounts AccountStore, remote Puller, tokens TokenConfig) *AccountHandler {
	return &AccountHandler{svc: svc, sessions: sessions, accounts: accounts, remote: remote, tokens: tokens}
}

type credentials struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

var errSyncDisabled = ErrUnavailable("sync is not configured on this server")

func (a *AccountHandler) SignUp(c *gin.Context) {
	if a.accounts == nil {
		fail(c, errSyncDisabled)
		return
	}
	var in credentials
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, ErrInvalid("email and password are required"))
		return
	}
	ctx := c.Request.Context()
	acc, err := a.accounts.SignUp(ctx, in.Email, in.Password)
	if err != nil {
		fail(c, err)
		return
	}
	pair, err := a.startSession(ctx, acc)
	if err != nil {
		fail(c, err)
		return
	}
	notices := a.svc.LinkAccount(ctx, acc.Email)
	notices = append(notices, a.svc.SyncAll(ctx)...)
	c.JSON(http.StatusCreated, gin.H{"account": acc, "tokens": pair, "notices": notices})
}

// SignIn starts a session. A device without a local profile restores the
// account's remote data; otherwise the local data is linked and pushed.
// Nothing is pushed when the remote side could not be read or when there is
// no local data to push, so an empty device never overwrites the account.
func (a *AccountHandler) SignIn(c *gin.Context) {
	if a.accounts == nil {
		fail(c, errSyncDisabled)
		return
	}
	var in credentials
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, ErrInvalid("email and password are required"))
		return
	}
	ctx := c.Request.Context()
	acc, err := a.accounts.SignIn(ctx, in.Email, in.Password)
	if err != nil {
		fail(c, err)
		return
	}
	pair, err := a.startSession(ctx, acc)
	if err != nil {
		fail(c, err)
		return
	}

	var notices []attendance.Notice
	restored := false
	push := true
	if _, err := a.svc.Profile(); err != nil && a.remote != nil {
		snap, err := a.remote.Pull(ctx, acc.ID)
		switch {
		case err != nil:
			log.Printf("pull remote data for %s failed: %v", acc.ID, err)
			notices = append(notices, attendance.Notice{Code: attendance.NoticeSyncFailed, Message: "remote data could not be restored, sign in again to retry"})
			push = false
		case !emptySnapshot(snap):
			notices = append(notices, a.svc.Restore(ctx, snap)...)
			restored = true
		default:
			push = !emptySnapshot(a.svc.Snapshot())
		}
	}
	if !restored && push {
		notices = append(notices, a.svc.LinkAccount(ctx, acc.Email)...)
		notices = append(notices, a.svc.SyncAll(ctx)...)
	}
	c.JSON(http.StatusOK, gin.H{"account": acc, "tokens": pair, "restored": restored, "notices": notices})
}

// Refresh rotates a refresh token of the account signed in on this device.
func (a *AccountHandler) Refresh(c *gin.Context) {
	if a.accounts == nil {
		fail(c, errSyncDisabled)
		return
	}
	var in struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, ErrInvalid("refresh_token is required"))
		return
	}
	claims, err := auth.ParseRefresh(in.RefreshToken, a.tokens.SigningKey, a.tokens.Issuer)
	if err != nil {
		fail(c, ErrUnauthenticated("invalid or expired refresh token, sign in again"))
		return
	}
	ctx := c.Request.Context()
	sess, err := a.sessions.LoadSession(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	if sess == nil || sess.UserID != claims.Subject {
		fail(c, ErrUnauthenticated("refresh token does not belong to the account signed in on this device"))
		return
	}
	if err := a.accounts.CheckRefresh(ctx, claims.ID, claims.Subject); err != nil {
		fail(c, err)
		return
	}
	if err := a.accounts.RevokeRefresh(ctx, claims.ID); err != nil {
		fail(c, err)
		return
	}
	pair, err := a.startSession(ctx, auth.Account{ID: claims.Subject, Email: claims.Email})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": pair})
}

// SignOut revokes the device's refresh token and clears all local data.
func (a *AccountHandler) SignOut(c *gin.Context) {
	ctx := c.Request.Context()
	if a.accounts != nil {
		if sess, err := a.sessions.LoadSession(ctx); err != nil {
			log.Printf("read session failed: %v", err)
		} else if sess != nil {
			if claims, err := auth.ParseRefresh(sess.RefreshToken, a.tokens.SigningKey, a.tokens.Issuer); err == nil {
				if err := a.accounts.RevokeRefresh(ctx, claims.ID); err != nil {
					log.Printf("revoke refresh token failed: %v", err)
				}
			}
		}
	}
	notices := a.svc.Reset(ctx)
	c.JSON(http.StatusOK, gin.H{"signed_out": true, "notices": notices})
}

// Sync pushes every collection for the signed-in account.
func (a *AccountHandler) Sync(c *gin.Context) {
	claims, ok := auth.ClaimsFrom(c)
	if !ok {
		fail(c, ErrUnauthenticated("sign in first"))
		return
	}
	ctx := c.Request.Context()
	sess, err := a.sessions.LoadSession(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	if sess == nil || sess.UserID != claims.Subject {
		fail(c, ErrUnauthenticated("token does not belong to the account signed in on this device"))
		return
	}
	notices := a.svc.SyncAll(ctx)
	c.JSON(http.StatusAccepted, gin.H{"queued": len(attendance.Collections), "notices": notices})
}

func (a *AccountHandler) requireBearer() gin.HandlerFunc {
	if a.accounts == nil {
		return func(c *gin.Context) { fail(c, errSyncDisabled) }
	}
	return auth.RequireBearer(a.tokens.SigningKey, a.tokens.Issuer)
}

func (a *AccountHandler) startSession(ctx context.Context, acc auth.Account) (auth.TokenPair, error) {
	pair, err := auth.Issue(acc.ID, acc.Email, a.tokens.Issuer, a.tokens.SigningKey, a.tokens.AccessTTL, a.tokens.RefreshTTL)
	if err != nil {
		return auth.TokenPair{}, err
	}
	if err := a.accounts.SaveRefresh(ctx, pair.RefreshID, acc.ID, pair.RefreshExp); err != nil {
		return auth.TokenPair{}, err
	}
	err = a.sessions.SaveSession(ctx, store.Session{
		UserID:       acc.ID,
		Email:        acc.Email,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.RefreshExp,
	})
	return pair, err
}

func emptySnapshot(s attendance.Snapshot) bool {
	return s.Profile == nil && len(s.Timetable) == 0 && len(s.Days) == 0 && len(s.Subjects) == 0
}
