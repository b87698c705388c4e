package main

import (
	"fmt"
	"time"

	"github.com/tasknest-next/internal/config"
	"github.com/tasknest-next/internal/constants"
	"github.com/tasknest-next/internal/logger"
	"github.com/tasknest-next/internal/models"
	"github.com/tasknest-next/internal/service"
)

// 本地开发演示账号，密码统一为 Demo#Pass123
const demoPassword = "Demo#Pass123"

type demoUser struct {
	Email       string
	DisplayName string
	Locale      string
	Status      string
	Verified    bool
	Providers   []string
}

func main() {
	// 连接数据库
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	// 自动迁移
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	passwordHash, err := service.HashPassword(demoPassword)
	if err != nil {
		stdLog.Fatalf("Failed to hash demo password: %v", err)
	}

	demoUsers := []demoUser{
		{
			Email:       "alice@tasknest.dev",
			DisplayName: "Alice",
			Locale:      "zh-CN",
			Status:      constants.UserStatusActive,
			Verified:    true,
			Providers:   []string{constants.AccountProviderGoogle},
		},
		{
			Email:       "bob@tasknest.dev",
			DisplayName: "Bob",
			Locale:      "en-US",
			Status:      constants.UserStatusActive,
			Verified:    true,
		},
		{
			Email:       "carol@tasknest.dev",
			DisplayName: "Carol",
			Locale:      "zh-CN",
			Status:      constants.UserStatusPendingVerify,
			Verified:    false,
		},
		{
			Email:       "mallory@tasknest.dev",
			DisplayName: "Mallory",
			Locale:      "en-US",
			Status:      constants.UserStatusSuspended,
			Verified:    true,
		},
	}

	for _, seed := range demoUsers {
		var existing models.User
		if err := models.DB.Where("email = ?", seed.Email).First(&existing).Error; err == nil {
			stdLog.Printf("User already exists: %s", seed.Email)
			continue
		}

		user := models.User{
			Email:       seed.Email,
			DisplayName: seed.DisplayName,
			Locale:      seed.Locale,
			Status:      seed.Status,
		}
		if seed.Verified {
			now := time.Now()
			user.EmailVerifiedAt = &now
		}
		if err := models.DB.Create(&user).Error; err != nil {
			stdLog.Printf("Failed to create user %s: %v", seed.Email, err)
			continue
		}

		credential := models.Account{
			UserID:            user.ID,
			Provider:          constants.AccountProviderCredential,
			ProviderAccountID: user.Email,
			ProviderEmail:     user.Email,
			PasswordHash:      passwordHash,
		}
		if err := models.DB.Create(&credential).Error; err != nil {
			stdLog.Printf("Failed to create credential account for %s: %v", seed.Email, err)
			continue
		}

		for _, provider := range seed.Providers {
			linked := models.Account{
				UserID:            user.ID,
				Provider:          provider,
				ProviderAccountID: fmt.Sprintf("seed-%s-%d", provider, user.ID),
				ProviderEmail:     user.Email,
			}
			if err := models.DB.Create(&linked).Error; err != nil {
				stdLog.Printf("Failed to link %s account for %s: %v", provider, seed.Email, err)
			}
		}

		stdLog.Printf("Created user: %s (%s)", seed.Email, seed.Status)
	}

	fmt.Println("\n✅ Demo data created successfully!")
	fmt.Println("Summary:")
	fmt.Printf("- %d demo users (password: %s)\n", len(demoUsers), demoPassword)
	fmt.Println("- alice@tasknest.dev: active, google linked")
	fmt.Println("- bob@tasknest.dev: active")
	fmt.Println("- carol@tasknest.dev: pending email verification")
	fmt.Println("- mallory@tasknest.dev: suspended")
}
