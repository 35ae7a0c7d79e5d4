package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/url"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"leavedesk/backend/config"
	"leavedesk/backend/internal/dto"
	"leavedesk/backend/internal/model"
	"leavedesk/backend/internal/repository"
	"leavedesk/backend/internal/zoho"
)

// ── Zoho 授权流程业务错误 ──

var (
	ErrZohoDisabled            = errors.New("Zoho 集成未启用")
	ErrZohoAdminOnly           = errors.New("仅管理员可以连接 Zoho People")
	ErrZohoNotConfigured       = errors.New("Zoho OAuth 配置不完整（client_id / client_secret / redirect_uri）")
	ErrZohoCallbackParams      = errors.New("缺少 code 或 state 参数")
	ErrOAuthStateMalformed     = errors.New("state 参数格式无效")
	ErrOAuthStateInvalid       = errors.New("state 无效、已过期或已被使用")
	ErrInvalidAccountsServer   = errors.New("accounts-server 参数不是合法的 Zoho accounts 地址")
	ErrZohoAuthorizationDenied = errors.New("用户在 Zoho 拒绝了授权")
)

const stateNonceLength = 32

// oauthState state 参数的明文结构，base64url(JSON) 编码后随授权 URL 往返
type oauthState struct {
	OrgID  string `json:"org_id"`
	UserID string `json:"user_id"`
	Nonce  string `json:"nonce"`
}

func encodeState(st oauthState) (string, error) {
	raw, err := json.Marshal(st)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func decodeState(s string) (*oauthState, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrOAuthStateMalformed
	}
	var st oauthState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, ErrOAuthStateMalformed
	}
	if st.OrgID == "" || st.UserID == "" || len(st.Nonce) != stateNonceLength {
		return nil, ErrOAuthStateMalformed
	}
	return &st, nil
}

// ZohoAuthService Zoho OAuth 授权流程：发起 → 回调换取 token → 持久化连接
type ZohoAuthService interface {
	Initiate(ctx context.Context, userID, role, orgID string) (*dto.ZohoAuthorizeResponse, error)
	Callback(ctx context.Context, req *dto.ZohoCallbackRequest) (*dto.ZohoCallbackResponse, error)
	Status(ctx context.Context, orgID string) (*dto.ZohoStatusResponse, error)
	Disconnect(ctx context.Context, orgID, callerID string) error
	// FrontendRedirectURL 浏览器回调完成后的跳转地址，附带 success 或 error 参数
	FrontendRedirectURL(err error) string
}

type zohoAuthService struct {
	cfg    *config.Config
	repo   *repository.Repository
	oauth  *zoho.OAuthClient
	states StateStore
	logger *zap.Logger
	now    func() time.Time
}

// NewZohoAuthService 创建 ZohoAuthService 实例
func NewZohoAuthService(cfg *config.Config, repo *repository.Repository, oauth *zoho.OAuthClient, states StateStore, logger *zap.Logger) ZohoAuthService {
	return &zohoAuthService{cfg: cfg, repo: repo, oauth: oauth, states: states, logger: logger, now: time.Now}
}

// ────────────────────── Initiate ──────────────────────

func (s *zohoAuthService) Initiate(ctx context.Context, userID, role, orgID string) (*dto.ZohoAuthorizeResponse, error) {
	if !s.cfg.Feature.ZohoIntegrationEnabled {
		return nil, ErrZohoDisabled
	}
	if role != model.RoleAdmin {
		return nil, ErrZohoAdminOnly
	}
	if !s.cfg.Zoho.Configured() {
		s.logger.Error("Zoho OAuth 配置缺失")
		return nil, ErrZohoNotConfigured
	}

	nonce, err := gonanoid.New(stateNonceLength)
	if err != nil {
		s.logger.Error("生成 state nonce 失败", zap.Error(err))
		return nil, err
	}
	state, err := encodeState(oauthState{OrgID: orgID, UserID: userID, Nonce: nonce})
	if err != nil {
		return nil, err
	}

	pending := PendingAuthorization{
		OrgID:       orgID,
		UserID:      userID,
		RedirectURI: s.oauth.RedirectURI(),
		ExpiresAt:   s.now().Add(s.cfg.Zoho.StateTTL),
	}
	if err := s.states.Save(ctx, nonce, pending); err != nil {
		s.logger.Error("保存 OAuth state 失败", zap.String("org_id", orgID), zap.Error(err))
		return nil, err
	}

	s.logger.Info("发起 Zoho 授权", zap.String("org_id", orgID), zap.String("user_id", userID))
	return &dto.ZohoAuthorizeResponse{
		AuthURL: s.oauth.AuthCodeURL(s.cfg.Zoho.AccountsBaseURL, state),
		State:   state,
	}, nil
}

// ────────────────────── Callback ──────────────────────

// Callback 任一步失败都不写入连接
func (s *zohoAuthService) Callback(ctx context.Context, req *dto.ZohoCallbackRequest) (*dto.ZohoCallbackResponse, error) {
	if !s.cfg.Feature.ZohoIntegrationEnabled {
		return nil, ErrZohoDisabled
	}
	if req.Error != "" {
		s.logger.Warn("Zoho 授权被拒绝", zap.String("error", req.Error))
		return nil, ErrZohoAuthorizationDenied
	}
	if req.Code == "" || req.State == "" {
		return nil, ErrZohoCallbackParams
	}
	if !s.cfg.Zoho.Configured() {
		return nil, ErrZohoNotConfigured
	}

	// 1. 结构校验后一次性消费 nonce
	st, err := decodeState(req.State)
	if err != nil {
		return nil, err
	}
	pending, err := s.states.Take(ctx, st.Nonce)
	if err != nil {
		if errors.Is(err, ErrStateNotFound) {
			return nil, ErrOAuthStateInvalid
		}
		s.logger.Error("读取 OAuth state 失败", zap.Error(err))
		return nil, err
	}
	if pending.OrgID != st.OrgID || pending.UserID != st.UserID {
		s.logger.Warn("OAuth state 与发起记录不一致", zap.String("org_id", st.OrgID))
		return nil, ErrOAuthStateInvalid
	}

	// 2. 确定 accounts server：accounts-server > location > 配置
	accounts := s.cfg.Zoho.AccountsBaseURL
	if req.AccountsServer != "" {
		validated, ok := zoho.ValidateAccountsServer(req.AccountsServer)
		if !ok {
			s.logger.Warn("拒绝非法 accounts-server", zap.String("accounts_server", req.AccountsServer))
			return nil, ErrInvalidAccountsServer
		}
		accounts = validated
	} else if req.Location != "" {
		if byLocation, ok := zoho.AccountsURLForLocation(req.Location); ok {
			accounts = byLocation
		}
	}

	// 3. 服务端换取 token
	grant, err := s.oauth.Exchange(ctx, accounts, req.Code, pending.RedirectURI)
	if err != nil {
		s.logger.Warn("Zoho 授权码换取失败", zap.String("org_id", pending.OrgID), zap.String("accounts", accounts), zap.Error(err))
		return nil, err
	}
	if grant.RefreshToken == "" {
		s.logger.Warn("Zoho 未返回 refresh token", zap.String("org_id", pending.OrgID))
		return nil, zoho.ErrMissingRefreshToken
	}

	// 4. 持久化连接（按 org 覆盖）
	conn := &model.ZohoConnection{
		OrgID:           pending.OrgID,
		AccountsBaseURL: accounts,
		PeopleBaseURL:   zoho.DerivePeopleBaseURL(grant.APIDomain, accounts),
		AccessToken:     grant.AccessToken,
		RefreshToken:    grant.RefreshToken,
		ExpiresAt:       grant.ExpiresAt,
		ConnectedBy:     model.StrPtr(pending.UserID),
	}
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.ZohoConnection.Upsert(ctx, conn); err != nil {
			return err
		}
		entry := newAuditLog(ctx, pending.UserID, "zoho_connected", "zoho_connections", conn.ConnectionID, nil,
			map[string]interface{}{
				"org_id":            conn.OrgID,
				"accounts_base_url": conn.AccountsBaseURL,
				"people_base_url":   conn.PeopleBaseURL,
				"expires_at":        conn.ExpiresAt.Format(time.RFC3339),
			})
		return tx.AuditLog.Create(ctx, entry)
	})
	if err != nil {
		s.logger.Error("保存 Zoho 连接失败", zap.String("org_id", conn.OrgID), zap.Error(err))
		return nil, err
	}

	s.logger.Info("Zoho People 已连接",
		zap.String("org_id", conn.OrgID),
		zap.String("people_base_url", conn.PeopleBaseURL),
		zap.Time("expires_at", conn.ExpiresAt),
	)
	return &dto.ZohoCallbackResponse{Success: true, OrgID: conn.OrgID}, nil
}

// ────────────────────── Status / Disconnect ──────────────────────

func (s *zohoAuthService) Status(ctx context.Context, orgID string) (*dto.ZohoStatusResponse, error) {
	conn, err := s.repo.ZohoConnection.GetByOrgID(ctx, orgID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &dto.ZohoStatusResponse{Connected: false, OrgID: orgID}, nil
		}
		s.logger.Error("查询 Zoho 连接失败", zap.String("org_id", orgID), zap.Error(err))
		return nil, err
	}
	return &dto.ZohoStatusResponse{
		Connected:       true,
		OrgID:           orgID,
		AccountsBaseURL: conn.AccountsBaseURL,
		PeopleBaseURL:   conn.PeopleBaseURL,
		ExpiresAt:       conn.ExpiresAt.Format(time.RFC3339),
		Expired:         !conn.ExpiresAt.After(s.now()),
		ConnectedBy:     conn.ConnectedBy,
		UpdatedAt:       conn.UpdatedAt.Format(time.RFC3339),
	}, nil
}

func (s *zohoAuthService) Disconnect(ctx context.Context, orgID, callerID string) error {
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.ZohoConnection.DeleteByOrgID(ctx, orgID); err != nil {
			return err
		}
		entry := newAuditLog(ctx, callerID, "zoho_disconnected", "zoho_connections", "", nil,
			map[string]interface{}{"org_id": orgID})
		return tx.AuditLog.Create(ctx, entry)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return zoho.ErrNotConnected
		}
		s.logger.Error("断开 Zoho 连接失败", zap.String("org_id", orgID), zap.Error(err))
		return err
	}
	s.logger.Info("Zoho People 已断开", zap.String("org_id", orgID), zap.String("by", callerID))
	return nil
}

// ────────────────────── FrontendRedirectURL ──────────────────────

func (s *zohoAuthService) FrontendRedirectURL(err error) string {
	base := s.cfg.Zoho.FrontendRedirectURL
	if base == "" {
		base = "/"
	}
	u, perr := url.Parse(base)
	if perr != nil {
		return base
	}
	q := u.Query()
	if err == nil {
		q.Set("success", "true")
	} else {
		q.Set("error", callbackErrorCode(err))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// callbackErrorCode 面向浏览器的错误标识，不暴露内部细节
func callbackErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrZohoAuthorizationDenied):
		return "access_denied"
	case errors.Is(err, ErrZohoCallbackParams), errors.Is(err, ErrOAuthStateMalformed):
		return "invalid_request"
	case errors.Is(err, ErrOAuthStateInvalid):
		return "invalid_state"
	case errors.Is(err, ErrInvalidAccountsServer):
		return "invalid_accounts_server"
	case errors.Is(err, zoho.ErrExchangeFailed), errors.Is(err, zoho.ErrMissingRefreshToken):
		return "exchange_failed"
	case errors.Is(err, ErrZohoNotConfigured), errors.Is(err, ErrZohoDisabled):
		return "not_configured"
	default:
		return "server_error"
	}
}
