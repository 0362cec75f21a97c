package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

var _ Store = (*RedisStore)(nil)

const maxTxAttempts = 16

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisStore layout, all keys under prefix:
//
//	sheet:<user>:<spreadsheet>   JSON encoded Spreadsheet
//	user-sheets:<user>           sorted set of spreadsheet ids scored by creation time
//	sheet-owners:<spreadsheet>   set of user ids
//	user:<user>                  JSON encoded User
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	return &RedisStore{
		rdb:    rdb,
		prefix: prefix,
	}
}

func (s *RedisStore) key(parts ...string) string {
	result := s.prefix
	for _, part := range parts {
		result += ":" + part
	}

	return result
}

func (s *RedisStore) sheetKey(userID, spreadsheetID string) string {
	return s.key("sheet", userID, spreadsheetID)
}

func (s *RedisStore) getJSON(ctx context.Context, db getter, key string, dst any) error {
	data, err := db.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return oops.In("registry").With("key", key).Wrapf(err, "redis get")
	}

	if err = json.Unmarshal(data, dst); err != nil {
		return oops.In("registry").With("key", key).Wrapf(err, "decode record")
	}

	return nil
}

// update runs fn in a WATCH transaction on keys and retries when another
// client modified them first.
func (s *RedisStore) update(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for range maxTxAttempts {
		err := s.rdb.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}

	return oops.In("registry").With("keys", keys).Errorf("too many concurrent updates")
}

func (s *RedisStore) UpsertSpreadsheet(ctx context.Context, sheet *Spreadsheet) (*Spreadsheet, error) {
	key := s.sheetKey(sheet.UserID, sheet.SpreadsheetID)

	var result Spreadsheet
	err := s.update(ctx, func(tx *redis.Tx) error {
		result = Spreadsheet{}

		err := s.getJSON(ctx, tx, key, &result)
		switch {
		case err == nil:
			result.Name = sheet.Name
		case errors.Is(err, ErrNotFound):
			result = *sheet
			if result.ID == "" {
				result.ID = uuid.NewString()
			}
		default:
			return err
		}

		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to marshal spreadsheet: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.ZAddNX(ctx, s.key("user-sheets", result.UserID), redis.Z{
				Score:  float64(result.CreatedAt.UnixNano()),
				Member: result.SpreadsheetID,
			})
			pipe.SAdd(ctx, s.key("sheet-owners", result.SpreadsheetID), result.UserID)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return nil, oops.In("registry").With("key", key).Wrapf(err, "redis upsert spreadsheet")
	}

	return &result, nil
}

func (s *RedisStore) FindSpreadsheet(ctx context.Context, userID, spreadsheetID string) (*Spreadsheet, error) {
	var result Spreadsheet
	if err := s.getJSON(ctx, s.rdb, s.sheetKey(userID, spreadsheetID), &result); err != nil {
		return nil, err
	}

	return &result, nil
}

func (s *RedisStore) ListSpreadsheets(ctx context.Context, userID string) ([]*Spreadsheet, error) {
	ids, err := s.rdb.ZRevRange(ctx, s.key("user-sheets", userID), 0, -1).Result()
	if err != nil {
		return nil, oops.In("registry").With("user_id", userID).Wrapf(err, "redis list spreadsheets")
	}

	result := make([]*Spreadsheet, 0, len(ids))
	for _, id := range ids {
		sheet, err := s.FindSpreadsheet(ctx, userID, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		result = append(result, sheet)
	}

	return result, nil
}

func (s *RedisStore) UpdateSchemaSummary(ctx context.Context, spreadsheetID, summary string) error {
	owners, err := s.rdb.SMembers(ctx, s.key("sheet-owners", spreadsheetID)).Result()
	if err != nil {
		return oops.In("registry").With("spreadsheet_id", spreadsheetID).Wrapf(err, "redis list owners")
	}

	if len(owners) == 0 {
		return ErrNotFound
	}

	for _, userID := range owners {
		key := s.sheetKey(userID, spreadsheetID)

		err = s.update(ctx, func(tx *redis.Tx) error {
			var sheet Spreadsheet
			if err := s.getJSON(ctx, tx, key, &sheet); err != nil {
				return err
			}

			sheet.SchemaSummary = summary

			data, err := json.Marshal(sheet)
			if err != nil {
				return fmt.Errorf("failed to marshal spreadsheet: %w", err)
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, data, 0)
				return nil
			})
			return err
		}, key)
		if errors.Is(err, ErrNotFound) {
			return err
		}
		if err != nil {
			return oops.In("registry").With("key", key).Wrapf(err, "redis update summary")
		}
	}

	return nil
}

func (s *RedisStore) PutUser(ctx context.Context, user *User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}

	key := s.key("user", user.ID)
	if err = s.rdb.Set(ctx, key, data, 0).Err(); err != nil {
		return oops.In("registry").With("key", key).Wrapf(err, "redis set")
	}

	return nil
}

func (s *RedisStore) GetUser(ctx context.Context, userID string) (*User, error) {
	var result User
	if err := s.getJSON(ctx, s.rdb, s.key("user", userID), &result); err != nil {
		return nil, err
	}

	return &result, nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
