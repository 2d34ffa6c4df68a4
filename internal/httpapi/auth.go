package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iohzrd/echora/internal/apperror"
	"github.com/iohzrd/echora/internal/auth"
	"github.com/iohzrd/echora/internal/store"
	"github.com/iohzrd/echora/internal/validation"
)

type registerRequest struct {
	Username   string `json:"username"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	InviteCode string `json:"invite_code"`
}

type authResponse struct {
	Token string     `json:"token"`
	User  *store.User `json:"user"`
}

func (s *Server) handleRegister(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequestf("invalid request body")
	}
	ctx := c.Request().Context()

	username, err := validation.ValidateUsername(req.Username)
	if err != nil {
		return apperror.BadRequestf("%v", err)
	}
	email, err := validation.ValidateEmail(req.Email)
	if err != nil {
		return apperror.BadRequestf("%v", err)
	}
	if err := validation.ValidatePassword(req.Password); err != nil {
		return apperror.BadRequestf("%v", err)
	}

	count, err := s.store.GetUserCount(ctx)
	if err != nil {
		return apperror.Internalf(err, "count users")
	}

	mode, err := s.store.GetSetting(ctx, "registration_mode")
	if err != nil {
		mode = "open"
	}

	inviteCode := ""
	if count > 0 && mode == "invite_only" {
		if req.InviteCode == "" {
			return apperror.Forbiddenf("Registration requires an invite code")
		}
		inviteCode = req.InviteCode
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return apperror.Internalf(err, "hash password")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return apperror.Internalf(err, "generate user id")
	}

	role := store.RoleMember
	if count == 0 {
		role = store.RoleOwner
	}

	user := &store.User{
		ID: id, Username: username, Email: email, PasswordHash: hash,
		Role: role, CreatedAt: time.Now().Unix(),
	}
	if err := s.store.CreateUserWithInvite(ctx, user, inviteCode); err != nil {
		return err
	}

	token, err := s.issuer.Create(user.ID, user.Username, user.Role)
	if err != nil {
		return apperror.Internalf(err, "create token")
	}
	return c.JSON(http.StatusCreated, authResponse{Token: token, User: user})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequestf("invalid request body")
	}
	ctx := c.Request().Context()

	user, err := s.store.GetUserByUsername(ctx, req.Username)
	if err != nil {
		return apperror.Authenticationf("Invalid username or password")
	}
	if s.hub.IsBannedCached(user.ID) {
		return apperror.Forbiddenf("This account is banned")
	}
	ok, err := auth.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil || !ok {
		return apperror.Authenticationf("Invalid username or password")
	}

	token, err := s.issuer.Create(user.ID, user.Username, user.Role)
	if err != nil {
		return apperror.Internalf(err, "create token")
	}
	return c.JSON(http.StatusOK, authResponse{Token: token, User: user})
}

func (s *Server) handleGetMe(c echo.Context) error {
	claims := auth.FromContext(c)
	user, err := s.store.GetUserByID(c.Request().Context(), claims.Sub)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

type updateMeRequest struct {
	DisplayName *string `json:"display_name"`
}

func (s *Server) handleUpdateMe(c echo.Context) error {
	claims := auth.FromContext(c)
	var req updateMeRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequestf("invalid request body")
	}
	if req.DisplayName != nil {
		name, err := validation.ValidateDisplayName(*req.DisplayName)
		if err != nil {
			return apperror.BadRequestf("%v", err)
		}
		req.DisplayName = &name
	}
	if err := s.store.UpdateUserDisplayName(c.Request().Context(), claims.Sub, req.DisplayName); err != nil {
		return err
	}
	user, err := s.store.GetUserByID(c.Request().Context(), claims.Sub)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (s *Server) handleChangePassword(c echo.Context) error {
	claims := auth.FromContext(c)
	var req changePasswordRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequestf("invalid request body")
	}
	if err := validation.ValidatePassword(req.NewPassword); err != nil {
		return apperror.BadRequestf("%v", err)
	}

	ctx := c.Request().Context()
	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return err
	}
	ok, err := auth.VerifyPassword(req.CurrentPassword, user.PasswordHash)
	if err != nil || !ok {
		return apperror.Authenticationf("Current password is incorrect")
	}
	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		return apperror.Internalf(err, "hash password")
	}
	if err := s.store.UpdateUserPassword(ctx, claims.Sub, hash); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// --- WebAuthn passkey ceremonies ---

func (s *Server) handlePasskeyRegisterBegin(c echo.Context) error {
	claims := auth.FromContext(c)
	ctx := c.Request().Context()
	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return err
	}
	passkeys, err := s.store.GetPasskeysForUser(ctx, user.ID)
	if err != nil {
		return err
	}
	waUser := &auth.WebAuthnUser{User: user, Passkeys: passkeys}

	creation, session, err := s.webauthn.BeginRegistration(waUser)
	if err != nil {
		return apperror.Internalf(err, "begin webauthn registration")
	}
	if err := s.hub.PutRegistrationChallenge(user.ID, session); err != nil {
		return apperror.Internalf(err, "store registration challenge")
	}
	return c.JSON(http.StatusOK, creation)
}

type passkeyFinishRequest struct {
	Name string `json:"name"`
}

func (s *Server) handlePasskeyRegisterFinish(c echo.Context) error {
	claims := auth.FromContext(c)
	ctx := c.Request().Context()
	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return err
	}

	var session webauthn.SessionData
	if !s.hub.TakeRegistrationChallenge(user.ID, &session) {
		return apperror.BadRequestf("No registration ceremony in progress or it has expired")
	}

	passkeys, err := s.store.GetPasskeysForUser(ctx, user.ID)
	if err != nil {
		return err
	}
	waUser := &auth.WebAuthnUser{User: user, Passkeys: passkeys}

	cred, err := s.webauthn.FinishRegistration(waUser, session, c.Request())
	if err != nil {
		return apperror.BadRequestf("passkey registration failed: %v", err)
	}

	name := c.QueryParam("name")
	var req passkeyFinishRequest
	if err := c.Bind(&req); err == nil && req.Name != "" {
		name = req.Name
	}
	if name == "" {
		name = "passkey"
	}

	id, err := uuid.NewV7()
	if err != nil {
		return apperror.Internalf(err, "generate passkey id")
	}
	pk, err := auth.PasskeyFromCredential(id, user.ID, name, cred, time.Now().Unix())
	if err != nil {
		return apperror.Internalf(err, "build passkey row")
	}
	if err := s.store.CreatePasskey(ctx, pk); err != nil {
		return err
	}
	return c.NoContent(http.StatusCreated)
}

type passkeyLoginBeginRequest struct {
	Username string `json:"username"`
}

func (s *Server) handlePasskeyLoginBegin(c echo.Context) error {
	var req passkeyLoginBeginRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequestf("invalid request body")
	}
	ctx := c.Request().Context()
	user, err := s.store.GetUserByUsername(ctx, req.Username)
	if err != nil {
		return apperror.Authenticationf("Invalid username")
	}
	passkeys, err := s.store.GetPasskeysForUser(ctx, user.ID)
	if err != nil {
		return err
	}
	waUser := &auth.WebAuthnUser{User: user, Passkeys: passkeys}

	assertion, session, err := s.webauthn.BeginLogin(waUser)
	if err != nil {
		return apperror.Internalf(err, "begin webauthn login")
	}
	if err := s.hub.PutAuthChallenge(req.Username, session); err != nil {
		return apperror.Internalf(err, "store login challenge")
	}
	return c.JSON(http.StatusOK, assertion)
}

func (s *Server) handlePasskeyLoginFinish(c echo.Context) error {
	username := c.QueryParam("username")
	if username == "" {
		return apperror.BadRequestf("username is required")
	}
	ctx := c.Request().Context()
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return apperror.Authenticationf("Invalid username")
	}
	if s.hub.IsBannedCached(user.ID) {
		return apperror.Forbiddenf("This account is banned")
	}

	var session webauthn.SessionData
	if !s.hub.TakeAuthChallenge(username, &session) {
		return apperror.BadRequestf("No login ceremony in progress or it has expired")
	}

	passkeys, err := s.store.GetPasskeysForUser(ctx, user.ID)
	if err != nil {
		return err
	}
	waUser := &auth.WebAuthnUser{User: user, Passkeys: passkeys}

	cred, err := s.webauthn.FinishLogin(waUser, session, c.Request())
	if err != nil {
		return apperror.Authenticationf("passkey login failed: %v", err)
	}
	for _, pk := range passkeys {
		if pk.CredentialID == string(cred.ID) {
			if blob, err := json.Marshal(cred); err == nil {
				_ = s.store.UpdatePasskeyUsage(ctx, pk.ID, string(blob), time.Now().Unix())
			}
			break
		}
	}

	token, err := s.issuer.Create(user.ID, user.Username, user.Role)
	if err != nil {
		return apperror.Internalf(err, "create token")
	}
	return c.JSON(http.StatusOK, authResponse{Token: token, User: user})
}

