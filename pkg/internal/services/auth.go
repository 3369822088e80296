package services

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"git.solsynth.dev/hypernet/meet/pkg/internal/database"
	"git.solsynth.dev/hypernet/meet/pkg/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var ErrInvalidCredentials = errors.New("invalid username or password")

type AccountClaims struct {
	jwt.RegisteredClaims

	Name string `json:"name"`
}

func GetAccount(id uint) (models.Account, error) {
	var account models.Account
	if err := database.C.Where("id = ?", id).First(&account).Error; err != nil {
		return account, err
	}
	return account, nil
}

func RegisterAccount(name, nick, email, password string) (models.Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.Account{}, err
	}

	account := models.Account{
		Name:     name,
		Nick:     nick,
		Email:    email,
		Password: string(hash),
	}

	var count int64
	if err := database.C.Model(&models.Account{}).
		Where("name = ? OR email = ?", name, email).
		Count(&count).Error; err != nil {
		return account, err
	} else if count > 0 {
		return account, fmt.Errorf("account with name %s or email %s already exists", name, email)
	}

	if err := database.C.Create(&account).Error; err != nil {
		return account, err
	}
	return account, nil
}

// AuthenticateAccount accepts either the account name or the email as login.
func AuthenticateAccount(login, password string) (models.Account, error) {
	var account models.Account
	if err := database.C.
		Where("name = ? OR email = ?", login, login).
		First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return account, ErrInvalidCredentials
		}
		return account, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.Password), []byte(password)); err != nil {
		return account, ErrInvalidCredentials
	}
	return account, nil
}

func EncodeAccountToken(account models.Account) (string, error) {
	duration := time.Second * time.Duration(viper.GetInt("security.token_duration"))
	if duration <= 0 {
		duration = 24 * time.Hour
	}

	now := time.Now()
	claims := AccountClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(int(account.ID)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
		},
		Name: account.Name,
	}

	tk := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tk.SignedString([]byte(viper.GetString("security.jwt_secret")))
}

func DecodeAccountToken(raw string) (uint, error) {
	var claims AccountClaims
	tk, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		return []byte(viper.GetString("security.jwt_secret")), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return 0, err
	} else if !tk.Valid {
		return 0, fmt.Errorf("invalid token")
	}

	id, err := strconv.Atoi(claims.Subject)
	if err != nil {
		return 0, fmt.Errorf("invalid token subject: %v", err)
	}
	return uint(id), nil
}
