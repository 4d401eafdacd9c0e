package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/cufee/botto-calendar/config"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketBots   = []byte("bots")
	bucketGuilds = []byte("guilds")
)

// ErrNotFound - Returned when a record does not exist
var ErrNotFound = errors.New("record not found")

// DB - Bolt db connection holding bot and guild records
type DB struct {
	bolt *bolt.DB
}

// Open - Open or create the database file at path
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	b, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 10 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	err = b.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketBots, bucketGuilds} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		b.Close()
		return nil, err
	}
	return &DB{bolt: b}, nil
}

// Close - Close DB connection
func (db *DB) Close() error {
	return db.bolt.Close()
}

// GetBotConfigs - Get all bot identities, ordered by ID
func (db *DB) GetBotConfigs() (bots []BotIdentity, err error) {
	err = db.bolt.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBots).ForEach(func(_, v []byte) error {
			var bot BotIdentity
			if err := json.Unmarshal(v, &bot); err != nil {
				return err
			}
			bots = append(bots, bot)
			return nil
		})
	})
	sort.Slice(bots, func(i, j int) bool { return bots[i].ID < bots[j].ID })
	return bots, err
}

// PutBotConfig - Insert or replace a bot identity
func (db *DB) PutBotConfig(bot BotIdentity) error {
	if bot.ID == "" {
		return errors.New("bot id is empty")
	}
	return db.put(bucketBots, []byte(bot.ID), bot)
}

// GetGuildConfig - Get settings for a guild served by a bot, ErrNotFound if absent
func (db *DB) GetGuildConfig(botID string, guildID uint64) (gc GuildConfig, err error) {
	err = db.bolt.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketGuilds).Get(guildKey(botID, guildID))
		if v == nil {
			return ErrNotFound
		}
		return json.Unmarshal(v, &gc)
	})
	return gc, err
}

// CreateGuildConfig - Insert settings for a guild, fails if a record already exists
func (db *DB) CreateGuildConfig(gc GuildConfig) error {
	normalizeRoles(gc.Roles)
	return db.bolt.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketGuilds)
		key := guildKey(gc.BotID, gc.ID)
		if b.Get(key) != nil {
			return fmt.Errorf("guild %d for bot %s already exists", gc.ID, gc.BotID)
		}
		bts, err := json.Marshal(gc)
		if err != nil {
			return err
		}
		return b.Put(key, bts)
	})
}

// PutGuildConfig - Insert or replace settings for a guild
func (db *DB) PutGuildConfig(gc GuildConfig) error {
	normalizeRoles(gc.Roles)
	return db.put(bucketGuilds, guildKey(gc.BotID, gc.ID), gc)
}

func (db *DB) put(bucket, key []byte, v interface{}) error {
	return db.bolt.Update(func(tx *bolt.Tx) error {
		bts, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return tx.Bucket(bucket).Put(key, bts)
	})
}

func normalizeRoles(roles []RoleConfig) {
	for i := range roles {
		if roles[i].LeadTime == 0 {
			roles[i].LeadTime = config.DefaultLeadTime
		}
	}
}

func guildKey(botID string, guildID uint64) []byte {
	return []byte(botID + "/" + strconv.FormatUint(guildID, 10))
}
