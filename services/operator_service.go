package services

import (
	"context"
	"errors"
	"strings"

	"visitor-kiosk/models"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

// OperatorService checks dashboard operators.
type OperatorService struct {
	DB     *gorm.DB
	logger *zap.Logger
}

func NewOperatorService(db *gorm.DB, logger *zap.Logger) *OperatorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OperatorService{DB: db, logger: logger}
}

// Authenticate verifies a username / password pair. Rows still holding a
// plaintext password are upgraded to bcrypt on first successful login.
func (s *OperatorService) Authenticate(ctx context.Context, username, password string) (*models.Operator, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	var op models.Operator
	err := s.DB.WithContext(ctx).Where("username = ?", username).First(&op).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	stored := op.Password
	switch {
	case stored == "":
		return nil, ErrInvalidCredentials
	case isBcryptHash(stored):
		if bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) != nil {
			return nil, ErrInvalidCredentials
		}
	default:
		if stored != password {
			return nil, ErrInvalidCredentials
		}
		if hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost); err == nil {
			if err := s.DB.WithContext(ctx).Model(&op).Update("password", string(hash)).Error; err != nil {
				s.logger.Warn("operator password upgrade failed", zap.String("username", username), zap.Error(err))
			}
		}
	}
	return &op, nil
}

// EnsureOperator creates the operator when the username does not exist yet.
// secret may be a bcrypt hash or a plaintext password.
func (s *OperatorService) EnsureOperator(ctx context.Context, fullName, username, secret string) error {
	username = strings.TrimSpace(username)
	if username == "" || secret == "" {
		return nil
	}
	var count int64
	if err := s.DB.WithContext(ctx).Model(&models.Operator{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash := secret
	if !isBcryptHash(secret) {
		b, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		hash = string(b)
	}
	op := models.Operator{FullName: fullName, Username: username, Password: hash}
	if err := s.DB.WithContext(ctx).Create(&op).Error; err != nil {
		return err
	}
	s.logger.Info("default operator seeded", zap.String("username", username))
	return nil
}

var ErrOperatorExists = errors.New("username already taken")

func (s *OperatorService) List(ctx context.Context) ([]models.Operator, error) {
	var ops []models.Operator
	err := s.DB.WithContext(ctx).Order("id ASC").Find(&ops).Error
	return ops, err
}

// Create adds an operator. A plaintext password is hashed; a bcrypt hash is
// stored as given.
func (s *OperatorService) Create(ctx context.Context, fullName, username, password string) (*models.Operator, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	var count int64
	if err := s.DB.WithContext(ctx).Model(&models.Operator{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrOperatorExists
	}
	hash := password
	if !isBcryptHash(password) {
		b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		hash = string(b)
	}
	op := models.Operator{FullName: strings.TrimSpace(fullName), Username: username, Password: hash}
	if err := s.DB.WithContext(ctx).Create(&op).Error; err != nil {
		return nil, err
	}
	s.logger.Info("operator created", zap.String("username", username))
	return &op, nil
}

// Delete soft-deletes an operator. The last remaining operator cannot be
// removed.
func (s *OperatorService) Delete(ctx context.Context, id uint) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Operator{}).Count(&count).Error; err != nil {
			return err
		}
		if count <= 1 {
			return ErrLastOperator
		}
		res := tx.Delete(&models.Operator{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrOperatorNotFound
		}
		return nil
	})
}

var (
	ErrOperatorNotFound = errors.New("operator not found")
	ErrLastOperator     = errors.New("cannot delete the last operator")
)
