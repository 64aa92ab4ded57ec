package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"aihelper-server-go/internal/domain/eventbus"
	"aihelper-server-go/internal/models"
	"aihelper-server-go/internal/platform/logging"
)

// Verification code types accepted by registration and login flows.
const (
	CodeTypeRegister      = "register"
	CodeTypeLogin         = "login"
	CodeTypeResetPassword = "reset_password"
)

var (
	ErrUserExists     = errors.New("邮箱或手机号已被注册")
	ErrUserNotFound   = errors.New("用户不存在")
	ErrBadCredentials = errors.New("用户名或密码错误")
	ErrCodeInvalid    = errors.New("验证码错误或已过期")
	ErrUserDisabled   = errors.New("账号已停用")
)

// CodeVerifier is the slice of the verification domain the auth service needs.
type CodeVerifier interface {
	Verify(ctx context.Context, receiver, codeType, code string) (bool, error)
}

// Service implements registration, login and password flows over the user
// store, and doubles as the user loader for the request authenticator.
type Service struct {
	db     *gorm.DB
	codec  *TokenCodec
	codes  CodeVerifier
	bus    *eventbus.Bus
	logger *logging.Logger
}

// NewService wires the auth service.
func NewService(db *gorm.DB, codec *TokenCodec, codes CodeVerifier, bus *eventbus.Bus, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{db: db, codec: codec, codes: codes, bus: bus, logger: logger}
}

// Codec exposes the token codec for the transport layer.
func (s *Service) Codec() *TokenCodec {
	return s.codec
}

// RegisterRequest 注册请求
type RegisterRequest struct {
	Email    string `json:"email"`
	Mobile   string `json:"mobile"`
	Password string `json:"password" binding:"required"`
	Nickname string `json:"nickname"`
	Code     string `json:"code"`
}

// LoginRequest 登录请求，邮箱和手机号二选一
type LoginRequest struct {
	Email    string `json:"email"`
	Mobile   string `json:"mobile"`
	Password string `json:"password" binding:"required"`
}

// CodeLoginRequest 验证码登录请求
type CodeLoginRequest struct {
	Email  string `json:"email"`
	Mobile string `json:"mobile"`
	Code   string `json:"code" binding:"required"`
}

// ResetPasswordRequest 重置密码请求
type ResetPasswordRequest struct {
	Email       string `json:"email"`
	Mobile      string `json:"mobile"`
	Code        string `json:"code" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required"`
}

// AuthResponse 认证成功后的返回体
type AuthResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// FindByUsername loads the current user record for a token subject. A missing
// user is returned as (nil, nil) so callers can treat it as unauthenticated.
func (s *Service) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// FindByID 根据ID获取用户
func (s *Service) FindByID(ctx context.Context, userID uint) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// Register creates a user from a verified registration request and issues a
// token. The username is system-generated and distinct from email/mobile.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	receiver := firstNonEmpty(req.Email, req.Mobile)
	if receiver == "" {
		return nil, errors.New("邮箱或手机号不能为空")
	}
	if req.Code != "" && s.codes != nil {
		codeOK, err := s.codes.Verify(ctx, receiver, CodeTypeRegister, req.Code)
		if err != nil {
			return nil, err
		}
		if !codeOK {
			return nil, ErrCodeInvalid
		}
	}

	if err := s.ensureUnregistered(ctx, req.Email, req.Mobile); err != nil {
		return nil, err
	}

	nickname := req.Nickname
	if strings.TrimSpace(nickname) == "" {
		nickname = "用户" + shortID()
	}

	user := &models.User{
		Username: s.generateUsername(ctx),
		Password: HashPassword(req.Password),
		Nickname: nickname,
		Email:    req.Email,
		Mobile:   req.Mobile,
		Role:     "user",
		Status:   1,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, fmt.Errorf("创建用户失败: %w", err)
	}
	s.logger.InfoTag("认证", "新用户注册成功 - 用户名: %s", user.Username)

	if s.bus != nil {
		// 异步生成AI头像，不阻塞注册返回
		s.bus.PublishAsync(eventbus.EventUserRegistered, user.ID)
	}

	return s.issueFor(user)
}

// Login authenticates by email or mobile plus password.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	user, err := s.findByReceiver(ctx, req.Email, req.Mobile)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if !CheckPassword(req.Password, user.Password) {
		s.logger.WarnTag("认证", "密码错误 - 用户: %s", user.Username)
		return nil, ErrBadCredentials
	}
	if !user.Enabled() {
		return nil, ErrUserDisabled
	}
	s.touchLastLogin(ctx, user.ID)
	return s.issueFor(user)
}

// LoginWithCode authenticates by a one-shot verification code.
func (s *Service) LoginWithCode(ctx context.Context, req CodeLoginRequest) (*AuthResponse, error) {
	receiver := firstNonEmpty(req.Email, req.Mobile)
	if receiver == "" {
		return nil, errors.New("邮箱或手机号不能为空")
	}
	codeOK, err := s.codes.Verify(ctx, receiver, CodeTypeLogin, req.Code)
	if err != nil {
		return nil, err
	}
	if !codeOK {
		return nil, ErrCodeInvalid
	}

	user, err := s.findByReceiver(ctx, req.Email, req.Mobile)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if !user.Enabled() {
		return nil, ErrUserDisabled
	}
	s.touchLastLogin(ctx, user.ID)
	return s.issueFor(user)
}

// ResetPassword replaces the password after a verification code check.
func (s *Service) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	receiver := firstNonEmpty(req.Email, req.Mobile)
	if receiver == "" {
		return errors.New("邮箱或手机号不能为空")
	}
	codeOK, err := s.codes.Verify(ctx, receiver, CodeTypeResetPassword, req.Code)
	if err != nil {
		return err
	}
	if !codeOK {
		return ErrCodeInvalid
	}

	user, err := s.findByReceiver(ctx, req.Email, req.Mobile)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}

	return s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]interface{}{
			"password":   HashPassword(req.NewPassword),
			"updated_at": time.Now(),
		}).Error
}

// ChangePassword verifies the old password before replacing it.
func (s *Service) ChangePassword(ctx context.Context, userID uint, oldPassword, newPassword string) error {
	user, err := s.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}
	if !CheckPassword(oldPassword, user.Password) {
		return ErrBadCredentials
	}
	return s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"password":   HashPassword(newPassword),
			"updated_at": time.Now(),
		}).Error
}

// CheckToken resolves a raw token back to its user record; used by the
// diagnostic check endpoint.
func (s *Service) CheckToken(ctx context.Context, tokenString string) (*models.User, error) {
	subject := s.codec.ExtractSubject(tokenString)
	if subject == "" {
		return nil, ErrBadCredentials
	}
	user, err := s.FindByUsername(ctx, subject)
	if err != nil {
		return nil, err
	}
	if user == nil || !s.codec.VerifyForUser(tokenString, user) {
		return nil, ErrBadCredentials
	}
	return user, nil
}

// SetUserStatus flips the account enabled flag (deactivate/activate).
func (s *Service) SetUserStatus(ctx context.Context, userID uint, status uint) error {
	return s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		}).Error
}

func (s *Service) issueFor(user *models.User) (*AuthResponse, error) {
	token, err := s.codec.Issue(user.Username, map[string]any{
		"user_id": user.ID,
		"role":    user.Role,
	})
	if err != nil {
		return nil, err
	}
	return &AuthResponse{Token: token, User: user}, nil
}

func (s *Service) findByReceiver(ctx context.Context, email, mobile string) (*models.User, error) {
	var user models.User
	query := s.db.WithContext(ctx)
	switch {
	case email != "":
		query = query.Where("email = ?", email)
	case mobile != "":
		query = query.Where("mobile = ?", mobile)
	default:
		return nil, errors.New("邮箱或手机号不能为空")
	}
	if err := query.First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (s *Service) ensureUnregistered(ctx context.Context, email, mobile string) error {
	var count int64
	query := s.db.WithContext(ctx).Model(&models.User{})
	switch {
	case email != "" && mobile != "":
		query = query.Where("email = ? OR mobile = ?", email, mobile)
	case email != "":
		query = query.Where("email = ?", email)
	default:
		query = query.Where("mobile = ?", mobile)
	}
	if err := query.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrUserExists
	}
	return nil
}

// generateUsername produces a unique system-generated username.
func (s *Service) generateUsername(ctx context.Context) string {
	for {
		candidate := "user_" + shortID()
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.User{}).
			Where("username = ?", candidate).Count(&count).Error; err != nil || count == 0 {
			return candidate
		}
	}
}

func (s *Service) touchLastLogin(ctx context.Context, userID uint) {
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{"updated_at": time.Now()}).Error; err != nil {
		s.logger.WarnTag("认证", "更新最后登录时间失败: %v", err)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
