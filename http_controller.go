package auth

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-credauth/middleware/guard"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Response is the JSON envelope of every API reply.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Errors  any    `json:"errors,omitempty"`
}

type AuthControllerRoutes struct {
	Register string
	Login    string
	Refresh  string
	Logout   string
	Me       string
	Users    string
	Health   string
}

type AuthController struct {
	Logger      Logger
	Auther      *Auther
	Routes      *AuthControllerRoutes
	TokenLookup guard.TokenConfig
	HealthCheck func(ctx context.Context) error
}

type AuthControllerOption func(*AuthController) *AuthController

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// WithHealthCheck sets the probe behind the health route, usually a DB ping.
func WithHealthCheck(check func(ctx context.Context) error) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.HealthCheck = check
		return c
	}
}

func WithTokenLookup(cfg guard.TokenConfig) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.TokenLookup = cfg
		return c
	}
}

func NewAuthController(auther *Auther, opts ...AuthControllerOption) *AuthController {
	if auther == nil {
		panic("Missing Auther in auth controller...")
	}

	c := &AuthController{
		Logger: ResolveLogger("http", nil),
		Auther: auther,
		Routes: &AuthControllerRoutes{
			Register: "/api/auth/register",
			Login:    "/api/auth/login",
			Refresh:  "/api/auth/refresh",
			Logout:   "/api/auth/logout",
			Me:       "/api/auth/me",
			Users:    "/api/users",
			Health:   "/health",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	return c
}

// RegisterAuthRoutes mounts every route of the controller on app.
func RegisterAuthRoutes(app fiber.Router, auther *Auther, opts ...AuthControllerOption) *AuthController {
	controller := NewAuthController(auther, opts...)

	authenticated := controller.Guard()
	owner := controller.Guard(
		guard.RequireUnlocked(guard.LockCheckerFunc(auther.Credentials().IsLocked)),
		guard.RequireOwner("id"),
	)

	app.Post(controller.Routes.Register, controller.RegisterPost)
	app.Post(controller.Routes.Login, controller.LoginPost)
	app.Post(controller.Routes.Refresh, controller.RefreshPost)
	app.Post(controller.Routes.Logout, authenticated, controller.LogoutPost)
	app.Get(controller.Routes.Me, authenticated, controller.MeGet)

	app.Get(controller.Routes.Users, authenticated, controller.UsersList)
	app.Get(controller.Routes.Users+"/:id", authenticated, controller.UserGet)
	app.Put(controller.Routes.Users+"/:id", owner, controller.UserUpdate)
	app.Delete(controller.Routes.Users+"/:id", owner, controller.UserDelete)

	app.Get(controller.Routes.Health, controller.HealthGet)

	return controller
}

// Guard builds the pipeline for authenticated routes: a valid access
// credential, an active caller, then any extra guards.
func (a *AuthController) Guard(extra ...guard.Guard) fiber.Handler {
	guards := append([]guard.Guard{
		guard.RequireAccessToken(guard.ResolverFunc(a.resolveAccount), a.TokenLookup),
		guard.RequireActiveAccount(),
		bindAccountContext,
	}, extra...)
	return guard.Pipeline(a.reject, guards...)
}

// bindAccountContext exposes the caller to handlers through the user context.
func bindAccountContext(c *fiber.Ctx) error {
	if account, ok := callerFrom(c); ok {
		c.SetUserContext(WithContext(c.UserContext(), account))
	}
	return nil
}

func (a *AuthController) resolveAccount(ctx context.Context, raw string) (guard.Account, error) {
	account, err := a.Auther.AccountFromAccessToken(ctx, raw)
	if err != nil {
		if TextCodeOf(err) == TextCodeAccountNotFound {
			return nil, withCause(ErrAccessInvalid, err)
		}
		return nil, err
	}
	return account, nil
}

func (a *AuthController) reject(c *fiber.Ctx, err error) error {
	return a.fail(c, err)
}

// RefreshPayload carries the refresh token for refresh and logout.
type RefreshPayload struct {
	RefreshToken string `json:"refresh_token" form:"refresh_token"`
}

func (a *AuthController) RegisterPost(c *fiber.Ctx) error {
	payload := new(RegisterRequest)
	if err := c.BodyParser(payload); err != nil {
		return a.fail(c, NewValidationError(map[string]string{"body": "malformed request body"}, err))
	}

	pair, err := a.Auther.Register(c.UserContext(), *payload)
	if err != nil {
		return a.fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(Response{
		Success: true,
		Message: "registration successful",
		Data:    pair,
	})
}

func (a *AuthController) LoginPost(c *fiber.Ctx) error {
	payload := new(LoginRequest)
	if err := c.BodyParser(payload); err != nil {
		return a.fail(c, NewValidationError(map[string]string{"body": "malformed request body"}, err))
	}
	payload.OriginAddress = c.IP()
	payload.UserAgent = c.Get(fiber.HeaderUserAgent)

	pair, _, err := a.Auther.Login(c.UserContext(), *payload)
	if err != nil {
		return a.fail(c, err)
	}

	return c.JSON(Response{
		Success: true,
		Message: "login successful",
		Data:    pair,
	})
}

func (a *AuthController) RefreshPost(c *fiber.Ctx) error {
	payload := new(RefreshPayload)
	if err := c.BodyParser(payload); err != nil {
		return a.fail(c, NewValidationError(map[string]string{"body": "malformed request body"}, err))
	}
	if payload.RefreshToken == "" {
		return a.fail(c, NewValidationError(map[string]string{"refresh_token": "cannot be blank"}, nil))
	}

	pair, err := a.Auther.Refresh(c.UserContext(), payload.RefreshToken)
	if err != nil {
		return a.fail(c, err)
	}

	return c.JSON(Response{
		Success: true,
		Message: "token refreshed",
		Data:    pair,
	})
}

func (a *AuthController) LogoutPost(c *fiber.Ctx) error {
	payload := new(RefreshPayload)
	if len(c.Body()) > 0 {
		if err := c.BodyParser(payload); err != nil {
			return a.fail(c, NewValidationError(map[string]string{"body": "malformed request body"}, err))
		}
	}

	if err := a.Auther.Logout(c.UserContext(), payload.RefreshToken); err != nil {
		return a.fail(c, err)
	}

	return c.JSON(Response{
		Success: true,
		Message: "logout successful",
	})
}

func (a *AuthController) MeGet(c *fiber.Ctx) error {
	account, ok := FromContext(c.UserContext())
	if !ok {
		return a.fail(c, ErrAccessMissing)
	}

	return c.JSON(Response{
		Success: true,
		Message: "account retrieved",
		Data:    account,
	})
}

func (a *AuthController) UsersList(c *fiber.Ctx) error {
	page, err := a.Auther.Credentials().ListAccounts(
		c.UserContext(),
		c.QueryInt("page", 1),
		c.QueryInt("per_page", defaultPerPage),
	)
	if err != nil {
		return a.fail(c, err)
	}

	return c.JSON(Response{
		Success: true,
		Message: "accounts retrieved",
		Data:    page,
	})
}

func (a *AuthController) UserGet(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return a.fail(c, withCause(ErrAccountNotFound, err))
	}

	account, err := a.Auther.Credentials().FindAccount(c.UserContext(), id)
	if err != nil {
		return a.fail(c, err)
	}

	return c.JSON(Response{
		Success: true,
		Message: "account retrieved",
		Data:    account,
	})
}

func (a *AuthController) UserUpdate(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return a.fail(c, withCause(ErrAccountNotFound, err))
	}

	payload := new(UpdateAccountRequest)
	if err := c.BodyParser(payload); err != nil {
		return a.fail(c, NewValidationError(map[string]string{"body": "malformed request body"}, err))
	}

	account, err := a.Auther.Credentials().UpdateAccount(c.UserContext(), id, *payload)
	if err != nil {
		return a.fail(c, err)
	}

	return c.JSON(Response{
		Success: true,
		Message: "account updated",
		Data:    account,
	})
}

func (a *AuthController) UserDelete(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return a.fail(c, withCause(ErrAccountNotFound, err))
	}

	if _, err := a.Auther.Credentials().DeactivateAccount(c.UserContext(), id); err != nil {
		return a.fail(c, err)
	}

	return c.JSON(Response{
		Success: true,
		Message: "account deactivated",
	})
}

func (a *AuthController) HealthGet(c *fiber.Ctx) error {
	if a.HealthCheck != nil {
		if err := a.HealthCheck(c.UserContext()); err != nil {
			a.Logger.Error("health check failed", "error", err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unhealthy"})
		}
	}
	return c.JSON(fiber.Map{"status": "healthy"})
}

func callerFrom(c *fiber.Ctx) (*Account, bool) {
	account, ok := guard.AccountFrom(c)
	if !ok {
		return nil, false
	}
	acc, ok := account.(*Account)
	return acc, ok
}

func (a *AuthController) fail(c *fiber.Ctx, err error) error {
	status, res := errorResponse(err)
	if status >= fiber.StatusInternalServerError {
		a.Logger.Error("request failed", "path", c.Path(), "error", err)
	} else {
		a.Logger.Debug("request rejected", "path", c.Path(), "text_code", TextCodeOf(err), "status", status)
	}
	return c.Status(status).JSON(res)
}

// errorResponse maps an error to its status and public envelope. Status and
// message come from the rich error, causes are never rendered.
func errorResponse(err error) (int, Response) {
	res := Response{Success: false, Message: MsgInternal}

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.Code == 0 {
		return fiber.StatusInternalServerError, res
	}

	res.Message = richErr.Message
	if richErr.Code >= fiber.StatusInternalServerError {
		res.Message = MsgInternal
	}
	if fields := richErr.ValidationMap(); len(fields) > 0 {
		res.Errors = fields
	}
	return richErr.Code, res
}
