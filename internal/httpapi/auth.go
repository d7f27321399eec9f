package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/feedbackflow/internal/auth"
	"github.com/MarkoPoloResearchLab/feedbackflow/internal/model"
	"github.com/MarkoPoloResearchLab/feedbackflow/internal/storage"
)

const (
	// SessionName is the cookie holding the dashboard session.
	SessionName = "feedbackflow_session"

	sessionKeyAdminID           = "admin_id"
	sessionKeyRedirectAfterAuth = "redirect_after_auth"
	sessionMaxAgeSeconds        = 7 * 24 * 60 * 60
	minimumSessionSecretBytes   = 32

	contextKeyCurrentAdmin = "httpapi_current_admin"
	authorizationScheme    = "bearer"

	authErrorUnauthorized = "unauthorized"

	errorValueWeakPassword      = "weak_password"
	errorValuePasswordTooLong   = "password_too_long"
	errorValueAdminExists       = "admin_exists"
	errorValueInvalidCredential = "invalid_credentials"
	errorValueSessionFailed     = "session_failed"

	logEventLoadSession = "load_session"
)

var ErrWeakSessionSecret = errors.New("httpapi: session secret must be at least 32 bytes")

// AdminFinder loads admins referenced by sessions and tokens.
type AdminFinder interface {
	FindAdminByID(ctx context.Context, adminID string) (model.Admin, error)
}

// AuthConfig collects AuthManager dependencies.
type AuthConfig struct {
	Service       *auth.Service
	Tokens        *auth.TokenIssuer
	Admins        AdminFinder
	SessionSecret string
	SecureCookies bool
	Logger        *zap.Logger
}

// AuthManager signs admins in with a session cookie or a bearer token.
type AuthManager struct {
	service      *auth.Service
	tokens       *auth.TokenIssuer
	admins       AdminFinder
	sessionStore *sessions.CookieStore
	logger       *zap.Logger
}

// NewAuthManager creates the cookie store and wires the credential services.
func NewAuthManager(config AuthConfig) (*AuthManager, error) {
	if len(config.SessionSecret) < minimumSessionSecretBytes {
		return nil, ErrWeakSessionSecret
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	store := sessions.NewCookieStore([]byte(config.SessionSecret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   sessionMaxAgeSeconds,
		HttpOnly: true,
		Secure:   config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
	return &AuthManager{
		service:      config.Service,
		tokens:       config.Tokens,
		admins:       config.Admins,
		sessionStore: store,
		logger:       logger,
	}, nil
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token    string        `json:"token"`
	Redirect string        `json:"redirect"`
	Admin    adminResponse `json:"admin"`
}

// Signup creates an admin account and signs it in.
func (authManager *AuthManager) Signup(context *gin.Context) {
	var payload credentialsRequest
	if bindErr := context.ShouldBindWith(&payload, binding.JSON); bindErr != nil {
		context.JSON(http.StatusBadRequest, gin.H{jsonKeyError: errorValueInvalidJSON})
		return
	}
	admin, signupErr := authManager.service.Signup(context.Request.Context(), payload.Email, payload.Password)
	if signupErr != nil {
		status, errorValue := signupErrorResponse(signupErr)
		if status == http.StatusInternalServerError {
			authManager.logger.Error("signup", zap.Error(signupErr))
		}
		context.JSON(status, gin.H{jsonKeyError: errorValue})
		return
	}
	authManager.completeSignIn(context, http.StatusCreated, admin)
}

// Login checks credentials and signs the admin in.
func (authManager *AuthManager) Login(context *gin.Context) {
	var payload credentialsRequest
	if bindErr := context.ShouldBindWith(&payload, binding.JSON); bindErr != nil {
		context.JSON(http.StatusBadRequest, gin.H{jsonKeyError: errorValueInvalidJSON})
		return
	}
	admin, loginErr := authManager.service.Login(context.Request.Context(), payload.Email, payload.Password)
	if loginErr != nil {
		if errors.Is(loginErr, auth.ErrInvalidCredentials) {
			context.JSON(http.StatusUnauthorized, gin.H{jsonKeyError: errorValueInvalidCredential})
			return
		}
		authManager.logger.Error("login", zap.Error(loginErr))
		context.JSON(http.StatusInternalServerError, gin.H{jsonKeyError: errorValueQueryFailed})
		return
	}
	authManager.completeSignIn(context, http.StatusOK, admin)
}

// Logout clears the session cookie.
func (authManager *AuthManager) Logout(context *gin.Context) {
	sessionInstance, sessionErr := authManager.sessionStore.Get(context.Request, SessionName)
	if sessionErr != nil {
		authManager.logger.Debug(logEventLoadSession, zap.Error(sessionErr))
	}
	sessionInstance.Values = map[interface{}]interface{}{}
	sessionInstance.Options = &sessions.Options{Path: "/", MaxAge: -1, HttpOnly: true}
	if saveErr := sessionInstance.Save(context.Request, context.Writer); saveErr != nil {
		authManager.logger.Warn("clear_session", zap.Error(saveErr))
	}
	context.JSON(http.StatusOK, gin.H{jsonKeyStatus: statusValueOK})
}

// RequireAuthenticatedJSON rejects requests without a valid session or bearer token.
func (authManager *AuthManager) RequireAuthenticatedJSON() gin.HandlerFunc {
	return func(context *gin.Context) {
		if _, ok := authManager.ensureAdmin(context); !ok {
			context.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{jsonKeyError: authErrorUnauthorized})
			return
		}
		context.Next()
	}
}

// RequireAuthenticatedWeb remembers the requested path and sends anonymous visitors to the auth page.
func (authManager *AuthManager) RequireAuthenticatedWeb() gin.HandlerFunc {
	return func(context *gin.Context) {
		if _, ok := authManager.ensureAdmin(context); !ok {
			authManager.rememberRedirect(context, context.Request.URL.Path)
			context.Redirect(http.StatusFound, auth.AuthPagePath)
			context.Abort()
			return
		}
		context.Next()
	}
}

// RedirectAuthenticated sends signed-in admins past the auth page.
func (authManager *AuthManager) RedirectAuthenticated() gin.HandlerFunc {
	return func(context *gin.Context) {
		if _, ok := authManager.ensureAdmin(context); ok {
			context.Redirect(http.StatusFound, auth.DefaultRedirectPath)
			context.Abort()
			return
		}
		context.Next()
	}
}

// CurrentAdminFromContext returns the admin resolved by the auth middleware.
func CurrentAdminFromContext(context *gin.Context) (*model.Admin, bool) {
	value, exists := context.Get(contextKeyCurrentAdmin)
	if !exists {
		return nil, false
	}
	admin, ok := value.(*model.Admin)
	return admin, ok
}

func (authManager *AuthManager) completeSignIn(context *gin.Context, status int, admin model.Admin) {
	token, tokenErr := authManager.tokens.Issue(admin.ID, admin.Email)
	if tokenErr != nil {
		authManager.logger.Error("issue_token", zap.Error(tokenErr))
		context.JSON(http.StatusInternalServerError, gin.H{jsonKeyError: errorValueSessionFailed})
		return
	}

	sessionInstance, sessionErr := authManager.sessionStore.Get(context.Request, SessionName)
	if sessionErr != nil {
		authManager.logger.Debug(logEventLoadSession, zap.Error(sessionErr))
	}
	redirect := auth.SafeRedirectPath(extractString(sessionInstance.Values[sessionKeyRedirectAfterAuth]))
	delete(sessionInstance.Values, sessionKeyRedirectAfterAuth)
	sessionInstance.Values[sessionKeyAdminID] = admin.ID
	if saveErr := sessionInstance.Save(context.Request, context.Writer); saveErr != nil {
		authManager.logger.Error("save_session", zap.Error(saveErr))
		context.JSON(http.StatusInternalServerError, gin.H{jsonKeyError: errorValueSessionFailed})
		return
	}

	context.JSON(status, authResponse{Token: token, Redirect: redirect, Admin: toAdminResponse(admin)})
}

func (authManager *AuthManager) rememberRedirect(context *gin.Context, path string) {
	sessionInstance, sessionErr := authManager.sessionStore.Get(context.Request, SessionName)
	if sessionErr != nil {
		authManager.logger.Debug(logEventLoadSession, zap.Error(sessionErr))
	}
	sessionInstance.Values[sessionKeyRedirectAfterAuth] = auth.SafeRedirectPath(path)
	if saveErr := sessionInstance.Save(context.Request, context.Writer); saveErr != nil {
		authManager.logger.Warn("save_session", zap.Error(saveErr))
	}
}

func (authManager *AuthManager) ensureAdmin(context *gin.Context) (*model.Admin, bool) {
	if admin, exists := CurrentAdminFromContext(context); exists {
		return admin, true
	}

	adminID, resolved := authManager.bearerAdminID(context)
	if !resolved {
		adminID = authManager.sessionAdminID(context)
	}
	if adminID == "" {
		return nil, false
	}

	admin, findErr := authManager.admins.FindAdminByID(context.Request.Context(), adminID)
	if findErr != nil {
		if !errors.Is(findErr, storage.ErrRecordNotFound) {
			authManager.logger.Warn("find_admin", zap.String("admin_id", adminID), zap.Error(findErr))
		}
		return nil, false
	}
	context.Set(contextKeyCurrentAdmin, &admin)
	return &admin, true
}

// bearerAdminID reports resolved=true whenever an Authorization header was
// presented, so a bad token never falls back to the session.
func (authManager *AuthManager) bearerAdminID(context *gin.Context) (string, bool) {
	header := strings.TrimSpace(context.GetHeader("Authorization"))
	if header == "" {
		return "", false
	}
	scheme, rawToken, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, authorizationScheme) {
		return "", true
	}
	claims, parseErr := authManager.tokens.Parse(strings.TrimSpace(rawToken))
	if parseErr != nil {
		authManager.logger.Debug("parse_token", zap.Error(parseErr))
		return "", true
	}
	return claims.Subject, true
}

func (authManager *AuthManager) sessionAdminID(context *gin.Context) string {
	sessionInstance, sessionErr := authManager.sessionStore.Get(context.Request, SessionName)
	if sessionErr != nil {
		authManager.logger.Warn(logEventLoadSession, zap.Error(sessionErr))
		return ""
	}
	return extractString(sessionInstance.Values[sessionKeyAdminID])
}

func signupErrorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrInvalidAdminEmail):
		return http.StatusBadRequest, errorValueInvalidEmail
	case errors.Is(err, auth.ErrWeakPassword):
		return http.StatusBadRequest, errorValueWeakPassword
	case errors.Is(err, auth.ErrPasswordTooLong):
		return http.StatusBadRequest, errorValuePasswordTooLong
	case errors.Is(err, auth.ErrAdminExists):
		return http.StatusConflict, errorValueAdminExists
	default:
		return http.StatusInternalServerError, errorValueSaveFailed
	}
}

func extractString(value interface{}) string {
	text, ok := value.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(text)
}
