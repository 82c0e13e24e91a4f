// token реализует выпуск и проверку JWT.
//
// Access- и refresh-токены подписываются разными секретами (HS256), поэтому
// access-токен нельзя предъявить вместо refresh и наоборот. Проверка (Verify*)
// и инспекция без проверки (Decode) возвращают разные типы: VerifiedClaims
// и DecodedClaims, так что решения об авторизации по непроверенным данным
// не выражаются в типах.
package token

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pribylovaa/go-jwt-auth/internal/config"
)

// Type — тип токена в claim "typ".
type Type string

const (
	TypeAccess  Type = "access"
	TypeRefresh Type = "refresh"
)

// Имена claims, которыми управляет движок. Пользовательские claims
// с такими именами игнорируются при выпуске.
const (
	claimSubject   = "sub"
	claimIssuedAt  = "iat"
	claimExpiresAt = "exp"
	claimNotBefore = "nbf"
	claimIssuer    = "iss"
	claimAudience  = "aud"
	claimID        = "jti"
	claimType      = "typ"
	claimSession   = "sid"
	claimEmail     = "email"
	claimName      = "name"
)

var reserved = map[string]struct{}{
	claimSubject: {}, claimIssuedAt: {}, claimExpiresAt: {}, claimNotBefore: {},
	claimIssuer: {}, claimAudience: {}, claimID: {}, claimType: {},
	claimSession: {}, claimEmail: {}, claimName: {},
}

// Claims — данные для выпуска access-токена.
type Claims struct {
	Subject string
	Email   string
	Name    string
	// Extra — произвольные прикладные claims.
	Extra map[string]any
}

// VerifiedClaims — claims токена, прошедшего проверку подписи, срока,
// издателя, аудитории и типа.
type VerifiedClaims struct {
	Type      Type
	Algorithm string
	ID        string
	Subject   string
	SessionID string
	Email     string
	Name      string
	Issuer    string
	Audience  []string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Extra     map[string]any
	// Raw — полный набор claims как в токене.
	Raw map[string]any
}

// UserID разбирает subject как UUID пользователя.
func (c *VerifiedClaims) UserID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, invalid(ReasonClaims, err)
	}

	return id, nil
}

// DecodedClaims — результат разбора без проверки. Не используется для авторизации.
type DecodedClaims struct {
	Algorithm string
	Subject   string
	Claims    map[string]any
	IssuedAt  *time.Time
	ExpiresAt *time.Time
}

// Engine выпускает и проверяет токены. Безопасен для конкурентного использования.
type Engine struct {
	accessKey  []byte
	refreshKey []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	audience   []string
	leeway     time.Duration
	now        func() time.Time
}

// New создаёт движок из явной конфигурации. Секреты обязательны и должны различаться.
func New(cfg config.AuthConfig) (*Engine, error) {
	const op = "token.engine.New"

	switch {
	case cfg.AccessSecret == "" || cfg.RefreshSecret == "":
		return nil, fmt.Errorf("%s: secrets are required: %w", op, ErrConfig)
	case cfg.AccessSecret == cfg.RefreshSecret:
		return nil, fmt.Errorf("%s: access and refresh secrets must differ: %w", op, ErrConfig)
	case cfg.AccessTokenTTL <= 0 || cfg.RefreshTokenTTL <= 0:
		return nil, fmt.Errorf("%s: ttl must be positive: %w", op, ErrConfig)
	case cfg.Leeway < 0:
		return nil, fmt.Errorf("%s: leeway must not be negative: %w", op, ErrConfig)
	}

	return &Engine{
		accessKey:  []byte(cfg.AccessSecret),
		refreshKey: []byte(cfg.RefreshSecret),
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		issuer:     cfg.Issuer,
		audience:   append([]string(nil), cfg.Audience...),
		leeway:     cfg.Leeway,
		now:        time.Now,
	}, nil
}

// AccessTTL возвращает срок жизни access-токена по умолчанию.
func (e *Engine) AccessTTL() time.Duration { return e.accessTTL }

// RefreshTTL возвращает срок жизни refresh-токена по умолчанию.
func (e *Engine) RefreshTTL() time.Duration { return e.refreshTTL }

// IssueAccessToken подписывает claims секретом access. ttl == 0 — срок по умолчанию.
// Возвращает токен и момент истечения.
func (e *Engine) IssueAccessToken(c Claims, ttl time.Duration) (string, time.Time, error) {
	const op = "token.engine.IssueAccessToken"

	if c.Subject == "" {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, ErrEmptySubject)
	}

	ttl, err := e.resolveTTL(ttl, e.accessTTL)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	claims := make(jwt.MapClaims, len(c.Extra)+10)
	for k, v := range c.Extra {
		if _, ok := reserved[k]; ok {
			continue
		}
		claims[k] = v
	}
	if c.Email != "" {
		claims[claimEmail] = c.Email
	}
	if c.Name != "" {
		claims[claimName] = c.Name
	}

	exp := e.stamp(claims, TypeAccess, c.Subject, ttl)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(e.accessKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	return signed, exp, nil
}

// IssueRefreshToken подписывает refresh-токен отдельным секретом.
// sessionID сохраняется между ротациями одной сессии.
func (e *Engine) IssueRefreshToken(subject, sessionID string, ttl time.Duration) (string, time.Time, error) {
	const op = "token.engine.IssueRefreshToken"

	if subject == "" {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, ErrEmptySubject)
	}

	ttl, err := e.resolveTTL(ttl, e.refreshTTL)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	claims := jwt.MapClaims{}
	if sessionID != "" {
		claims[claimSession] = sessionID
	}
	exp := e.stamp(claims, TypeRefresh, subject, ttl)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(e.refreshKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	return signed, exp, nil
}

// VerifyAccessToken проверяет подпись, срок, издателя, аудиторию и тип access-токена.
func (e *Engine) VerifyAccessToken(raw string) (*VerifiedClaims, error) {
	return e.verify(raw, e.accessKey, TypeAccess)
}

// VerifyRefreshToken — то же для refresh-токена. Отзыв на стороне хранилища
// здесь не проверяется: этим занимается менеджер сессий.
func (e *Engine) VerifyRefreshToken(raw string) (*VerifiedClaims, error) {
	return e.verify(raw, e.refreshKey, TypeRefresh)
}

// Decode разбирает токен без проверки подписи и срока.
func (e *Engine) Decode(raw string) (*DecodedClaims, error) {
	const op = "token.engine.Decode"

	claims := jwt.MapClaims{}
	tok, _, err := jwt.NewParser().ParseUnverified(raw, claims)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrMalformed)
	}

	out := &DecodedClaims{Claims: maps.Clone(map[string]any(claims))}
	if tok.Method != nil {
		out.Algorithm = tok.Method.Alg()
	}

	out.Subject, _ = claims.GetSubject()
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		t := iat.Time.UTC()
		out.IssuedAt = &t
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		t := exp.Time.UTC()
		out.ExpiresAt = &t
	}

	return out, nil
}

func (e *Engine) verify(raw string, key []byte, want Type) (*VerifiedClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(e.leeway),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(e.now),
	}
	if e.issuer != "" {
		opts = append(opts, jwt.WithIssuer(e.issuer))
	}
	if len(e.audience) > 0 {
		opts = append(opts, jwt.WithAudience(e.audience...))
	}

	claims := jwt.MapClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return key, nil
	}, opts...)
	if err != nil {
		return nil, invalid(classify(err), err)
	}
	if !tok.Valid {
		return nil, invalid(ReasonSignature, nil)
	}

	if typ, _ := claims[claimType].(string); Type(typ) != want {
		return nil, invalid(ReasonWrongType, nil)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, invalid(ReasonClaims, err)
	}

	out := &VerifiedClaims{
		Type:      want,
		Algorithm: tok.Method.Alg(),
		Subject:   sub,
		Raw:       maps.Clone(map[string]any(claims)),
		Extra:     make(map[string]any),
	}
	out.ID, _ = claims[claimID].(string)
	out.SessionID, _ = claims[claimSession].(string)
	out.Email, _ = claims[claimEmail].(string)
	out.Name, _ = claims[claimName].(string)
	out.Issuer, _ = claims.GetIssuer()
	out.Audience, _ = claims.GetAudience()

	if iat, _ := claims.GetIssuedAt(); iat != nil {
		out.IssuedAt = iat.Time.UTC()
	}
	if exp, _ := claims.GetExpirationTime(); exp != nil {
		out.ExpiresAt = exp.Time.UTC()
	}

	for k, v := range claims {
		if _, ok := reserved[k]; !ok {
			out.Extra[k] = v
		}
	}

	return out, nil
}

// stamp проставляет зарегистрированные claims и возвращает момент истечения
// с той же точностью, что попадёт в токен.
func (e *Engine) stamp(claims jwt.MapClaims, typ Type, subject string, ttl time.Duration) time.Time {
	now := e.now().UTC()
	iat := jwt.NewNumericDate(now)
	exp := jwt.NewNumericDate(now.Add(ttl))

	claims[claimSubject] = subject
	claims[claimIssuedAt] = iat
	claims[claimExpiresAt] = exp
	claims[claimID] = uuid.NewString()
	claims[claimType] = string(typ)
	if e.issuer != "" {
		claims[claimIssuer] = e.issuer
	}
	if len(e.audience) > 0 {
		claims[claimAudience] = jwt.ClaimStrings(e.audience)
	}

	return exp.Time.UTC()
}

func (e *Engine) resolveTTL(ttl, def time.Duration) (time.Duration, error) {
	switch {
	case ttl == 0:
		return def, nil
	case ttl < 0:
		return 0, ErrInvalidTTL
	default:
		return ttl, nil
	}
}

// classify переводит ошибки jwt в машиночитаемую причину.
func classify(err error) Reason {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ReasonMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ReasonSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ReasonExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return ReasonNotYetValid
	default:
		return ReasonClaims
	}
}

// HashRefreshToken возвращает sha256(token) в base64url без паддинга.
// В хранилище попадает только хэш.
func HashRefreshToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
