package service

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/noteqa/ragcore/internal/logger"
	"github.com/noteqa/ragcore/internal/types"
	"github.com/noteqa/ragcore/internal/types/interfaces"
)

var apiKeySecret = func() []byte {
	key := []byte(os.Getenv("TENANT_AES_KEY"))
	if len(key) != 32 {
		// AES-256 requires exactly 32 key bytes; pad/truncate a short or
		// unset env var so development boots without a key configured.
		padded := make([]byte, 32)
		copy(padded, key)
		return padded
	}
	return key
}

// tenantService implements interfaces.TenantService: tenant bootstrapping
// and API-key issuance/verification for middleware.Auth. Authentication
// itself (issuing and validating credentials upstream of the API key) stays
// an external collaborator this package does not implement.
type tenantService struct {
	repo interfaces.TenantRepository
}

// NewTenantService creates a new tenant service instance.
func NewTenantService(repo interfaces.TenantRepository) interfaces.TenantService {
	return &tenantService{repo: repo}
}

// CreateTenant provisions a tenant and issues its initial API key.
func (s *tenantService) CreateTenant(ctx context.Context, tenant *types.Tenant) (*types.Tenant, error) {
	if tenant.Name == "" {
		return nil, errors.New("tenant name cannot be empty")
	}
	tenant.Status = "active"
	tenant.CreatedAt = time.Now()
	tenant.UpdatedAt = time.Now()

	if err := s.repo.CreateTenant(ctx, tenant); err != nil {
		logger.ErrorWithFields(ctx, "create tenant", map[string]interface{}{"tenant_name": tenant.Name, "error": err.Error()})
		return nil, err
	}

	tenant.APIKey = s.generateAPIKey(tenant.ID)
	logger.Infof(ctx, "tenant created, id=%d name=%s", tenant.ID, tenant.Name)
	return tenant, nil
}

// GetTenantByID retrieves a tenant by its identifier.
func (s *tenantService) GetTenantByID(ctx context.Context, id uint64) (*types.Tenant, error) {
	if id == 0 {
		return nil, errors.New("tenant ID cannot be 0")
	}
	return s.repo.GetTenantByID(ctx, id)
}

// ExtractTenantIDFromAPIKey recovers the tenant ID encoded in an API key
// minted by generateAPIKey, verifying its AES-GCM tag in the process.
func (s *tenantService) ExtractTenantIDFromAPIKey(apiKey string) (uint64, error) {
	parts := strings.SplitN(apiKey, "-", 2)
	if len(parts) != 2 || parts[0] != "sk" {
		return 0, errors.New("invalid API key format")
	}

	encryptedData, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return 0, errors.New("invalid API key encoding")
	}
	if len(encryptedData) < 12 {
		return 0, errors.New("invalid API key length")
	}
	nonce, ciphertext := encryptedData[:12], encryptedData[12:]

	block, err := aes.NewCipher(apiKeySecret())
	if err != nil {
		return 0, errors.New("decryption error")
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return 0, errors.New("decryption error")
	}
	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return 0, errors.New("API key is invalid or has been tampered with")
	}

	return binary.LittleEndian.Uint64(plaintext), nil
}

// generateAPIKey AES-GCM-encrypts tenantID into a "sk-"-prefixed token.
func (s *tenantService) generateAPIKey(tenantID uint64) string {
	idBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(idBytes, tenantID)

	block, err := aes.NewCipher(apiKeySecret())
	if err != nil {
		panic("tenant service: AES cipher: " + err.Error())
	}
	nonce := make([]byte, 12)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		panic("tenant service: nonce: " + err.Error())
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		panic("tenant service: GCM: " + err.Error())
	}

	ciphertext := aesgcm.Seal(nil, nonce, idBytes, nil)
	combined := append(nonce, ciphertext...)
	return "sk-" + base64.RawURLEncoding.EncodeToString(combined)
}
