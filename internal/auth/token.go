package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken — токен отсутствует, подделан, просрочен или без sub.
var ErrInvalidToken = errors.New("невалидный или просроченный токен")

// Claims — claims токена доступа.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// Principal — аутентифицированный пользователь запроса.
type Principal struct {
	UserID int64
	Email  string
}

// Issuer выпускает HS256-токены.
type Issuer struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

// NewIssuer создаёт выпускающего токены с общим секретом.
func NewIssuer(secret string, expiry time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), expiry: expiry, now: time.Now}
}

// Issue выпускает токен для пользователя.
func (i *Issuer) Issue(userID int64, email string) (string, error) {
	now := i.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.expiry)),
		},
		Email: email,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("подпись токена: %w", err)
	}
	return signed, nil
}

// Verifier проверяет подпись и срок действия токенов.
type Verifier struct {
	keyfunc func(ctx context.Context) jwt.Keyfunc
	methods []string
	leeway  time.Duration
}

// NewHS256Verifier создаёт проверку токенов, выпущенных Issuer с тем же секретом.
func NewHS256Verifier(secret string, leeway time.Duration) *Verifier {
	key := []byte(secret)
	return &Verifier{
		keyfunc: func(context.Context) jwt.Keyfunc {
			return func(*jwt.Token) (any, error) { return key, nil }
		},
		methods: []string{jwt.SigningMethodHS256.Alg()},
		leeway:  leeway,
	}
}

// NewJWKSVerifier создаёт проверку RS256-токенов внешнего IdP по JWKS.
// Ключи обновляются в фоне; сервис стартует, даже если JWKS ещё недоступен.
func NewJWKSVerifier(
	jwksURL string,
	clientTimeout time.Duration,
	refreshInterval time.Duration,
	leeway time.Duration,
	logger *slog.Logger,
) (*Verifier, error) {
	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Client:                    &http.Client{Timeout: clientTimeout},
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           refreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", jwksURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}
	return NewVerifierWithKeyfunc(k, leeway), nil
}

// NewVerifierWithKeyfunc создаёт RS256-проверку с готовым keyfunc.
// Используется в тестах с keyfunc.NewJWKSetJSON.
func NewVerifierWithKeyfunc(k keyfunc.Keyfunc, leeway time.Duration) *Verifier {
	return &Verifier{
		keyfunc: k.KeyfuncCtx,
		methods: []string{jwt.SigningMethodRS256.Alg()},
		leeway:  leeway,
	}
}

// Verify проверяет токен и возвращает пользователя из sub.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, v.keyfunc(ctx),
		jwt.WithValidMethods(v.methods),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return nil, fmt.Errorf("%w: некорректный sub %q", ErrInvalidToken, claims.Subject)
	}
	return &Principal{UserID: userID, Email: claims.Email}, nil
}
