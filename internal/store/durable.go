package store

import (
	"context"
	"fmt"

	"blockguess/internal/db"
	"blockguess/internal/logger"
	"blockguess/internal/models"
	"blockguess/internal/table"

	"gorm.io/gorm"
)

// Durable writes every insert and update through to a gorm database and
// restores stored rows when opened.
type Durable struct {
	tables
	db *gorm.DB
}

// OpenDurable migrates the schema, loads existing rows and returns the store.
func OpenDurable(ctx context.Context, gdb *gorm.DB, log *logger.Logger) (*Durable, error) {
	if gdb == nil {
		return nil, fmt.Errorf("durable store: nil database")
	}
	if log == nil {
		log = logger.Nop()
	}
	if err := db.AutoMigrate(gdb.WithContext(ctx)); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	d := &Durable{db: gdb}
	var err error
	if d.rounds, err = restore[models.Round](ctx, gdb, "rounds", log); err != nil {
		return nil, err
	}
	if d.guesses, err = restore[models.Guess](ctx, gdb, "guesses", log); err != nil {
		return nil, err
	}
	if d.chat, err = restore[models.ChatMessage](ctx, gdb, "chat_messages", log); err != nil {
		return nil, err
	}
	if d.logs, err = restore[models.LogEvent](ctx, gdb, "log_events", log); err != nil {
		return nil, err
	}
	if d.prize, err = restore[models.PrizeConfig](ctx, gdb, "prize_configs", log); err != nil {
		return nil, err
	}
	log.Infof("durable store opened: rounds=%d guesses=%d chat=%d logs=%d",
		d.rounds.Len(), d.guesses.Len(), d.chat.Len(), d.logs.Len())
	return d, nil
}

// restore loads all rows of T ordered by id together with the table's id
// counter and builds a write-through table.
func restore[T table.Row[T]](ctx context.Context, gdb *gorm.DB, name string, log *logger.Logger) (*table.Table[T], error) {
	var rows []T
	if err := gdb.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	var counter models.IDCounter
	if err := gdb.WithContext(ctx).Where("name = ?", name).Limit(1).Find(&counter).Error; err != nil {
		return nil, fmt.Errorf("load %s counter: %w", name, err)
	}
	reserve := func(id uint64) error {
		return gdb.Save(&models.IDCounter{Name: name, LastID: id}).Error
	}
	persist := func(rec T) error {
		return gdb.Save(&rec).Error
	}
	return table.New(name,
		table.WithRows(rows),
		table.WithCounter[T](counter.LastID, reserve),
		table.WithPersister[T](persist),
		table.WithLogger[T](log),
	), nil
}

// Ping checks the underlying connection.
func (d *Durable) Ping(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (d *Durable) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
