package database

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

var C *gorm.DB

func NewSource() error {
	dialector, err := NewDialector(viper.GetString("database.driver"), viper.GetString("database.dsn"))
	if err != nil {
		return err
	}

	dialect := viper.GetString("database.driver")
	C, err = gorm.Open(dialector, &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			TablePrefix: viper.GetString("database.prefix"),
		},
		Logger: logger.New(&log.Logger, logger.Config{
			Colorful:                  true,
			IgnoreRecordNotFoundError: true,
			LogLevel:                  lo.Ternary(viper.GetBool("debug.database"), logger.Info, logger.Silent),
		}),
	})
	if err != nil {
		return fmt.Errorf("open %s database: %w", dialect, err)
	}

	return nil
}

// NewDialector picks the gorm driver, postgres unless configured otherwise.
func NewDialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case "", "postgres":
		return postgres.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(withSQLiteLocking(dsn)), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
}

// withSQLiteLocking makes every sqlite transaction take the write lock when it
// begins, concurrent writers then queue on the busy timeout instead of failing
// with SQLITE_BUSY halfway through.
func withSQLiteLocking(dsn string) string {
	for _, param := range []string{"_txlock=immediate", "_busy_timeout=5000"} {
		key, _, _ := strings.Cut(param, "=")
		if strings.Contains(dsn, key+"=") {
			continue
		}
		dsn += lo.Ternary(strings.Contains(dsn, "?"), "&", "?") + param
	}
	return dsn
}
