package kv

import (
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var _ Store = (*LevelDB)(nil)

var writeOpt = opt.WriteOptions{}
var readOpt = opt.ReadOptions{}

// Options for opening a level db store.
type Options struct {
	// CacheSize is the leveldb block cache plus write buffer budget in MiB.
	CacheSize              int `yaml:"cache_size"`
	OpenFilesCacheCapacity int `yaml:"open_files_cache_capacity"`
	// ValueCacheEntries sizes the LRU of recently read values.
	ValueCacheEntries int `yaml:"value_cache_entries"`
}

// LevelDB is a Store backed by goleveldb with an LRU of recently read values.
type LevelDB struct {
	db    *leveldb.DB
	stg   storage.Storage
	cache *lru.Cache
}

// OpenLevelDB opens a persistent store at path, creating it if absent.
func OpenLevelDB(path string, opts Options) (*LevelDB, error) {
	stg, err := storage.OpenFile(path, false)
	if err != nil {
		return nil, errors.Wrap(err, "new persistent level db")
	}
	return openLevelDB(stg, opts)
}

// NewMemLevelDB creates a level db store held in memory.
func NewMemLevelDB() (*LevelDB, error) {
	return openLevelDB(storage.NewMemStorage(), Options{})
}

func openLevelDB(stg storage.Storage, opts Options) (*LevelDB, error) {
	if opts.CacheSize < 16 {
		opts.CacheSize = 16
	}
	if opts.OpenFilesCacheCapacity < 16 {
		opts.OpenFilesCacheCapacity = 16
	}
	if opts.ValueCacheEntries <= 0 {
		opts.ValueCacheEntries = 1024
	}

	db, err := leveldb.Open(stg, &opt.Options{
		OpenFilesCacheCapacity: opts.OpenFilesCacheCapacity,
		BlockCacheCapacity:     opts.CacheSize / 2 * opt.MiB,
		WriteBuffer:            opts.CacheSize / 4 * opt.MiB,
		Filter:                 filter.NewBloomFilter(10),
	})
	if err != nil {
		stg.Close()
		return nil, errors.Wrap(err, "open level db")
	}

	cache, err := lru.New(opts.ValueCacheEntries)
	if err != nil {
		db.Close()
		stg.Close()
		return nil, errors.Wrap(err, "new value cache")
	}
	return &LevelDB{db: db, stg: stg, cache: cache}, nil
}

// Get retrieves the value for key, serving repeated reads from the cache.
func (l *LevelDB) Get(key []byte) ([]byte, error) {
	if v, ok := l.cache.Get(string(key)); ok {
		return append([]byte(nil), v.([]byte)...), nil
	}
	v, err := l.db.Get(key, &readOpt)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get")
	}
	l.cache.Add(string(key), append([]byte(nil), v...))
	return v, nil
}

func (l *LevelDB) Has(key []byte) (bool, error) {
	if l.cache.Contains(string(key)) {
		return true, nil
	}
	ok, err := l.db.Has(key, &readOpt)
	if err != nil {
		return false, errors.Wrap(err, "has")
	}
	return ok, nil
}

func (l *LevelDB) Iterate(prefix []byte, fn func(key, value []byte) bool) error {
	it := l.db.NewIterator(util.BytesPrefix(prefix), &readOpt)
	defer it.Release()

	for it.Next() {
		k := append([]byte(nil), it.Key()...)
		v := append([]byte(nil), it.Value()...)
		if !fn(k, v) {
			break
		}
	}
	return errors.Wrap(it.Error(), "iterate")
}

func (l *LevelDB) Put(key, value []byte) error {
	if err := l.db.Put(key, value, &writeOpt); err != nil {
		return errors.Wrap(err, "put")
	}
	l.cache.Add(string(key), append([]byte(nil), value...))
	return nil
}

func (l *LevelDB) Delete(key []byte) error {
	if err := l.db.Delete(key, &writeOpt); err != nil {
		return errors.Wrap(err, "delete")
	}
	l.cache.Remove(string(key))
	return nil
}

func (l *LevelDB) NewBatch() Batch {
	return &levelDBBatch{store: l, batch: new(leveldb.Batch)}
}

// Close closes the level db and releases the directory lock. Later
// operations will all fail.
func (l *LevelDB) Close() error {
	l.cache.Purge()
	if err := l.db.Close(); err != nil {
		l.stg.Close()
		return errors.Wrap(err, "close level db")
	}
	return errors.Wrap(l.stg.Close(), "close level db storage")
}

type levelDBBatch struct {
	store *LevelDB
	batch *leveldb.Batch
	ops   []op
}

func (b *levelDBBatch) Put(key, value []byte) error {
	b.batch.Put(key, value)
	b.ops = append(b.ops, op{key: append([]byte(nil), key...), value: append([]byte(nil), value...)})
	return nil
}

func (b *levelDBBatch) Delete(key []byte) error {
	b.batch.Delete(key)
	b.ops = append(b.ops, op{key: append([]byte(nil), key...), delete: true})
	return nil
}

func (b *levelDBBatch) Len() int { return b.batch.Len() }

// Write applies the batch atomically, then brings the value cache in line.
func (b *levelDBBatch) Write() error {
	if err := b.store.db.Write(b.batch, &writeOpt); err != nil {
		return errors.Wrap(err, "write batch")
	}
	for _, o := range b.ops {
		if o.delete {
			b.store.cache.Remove(string(o.key))
		} else {
			b.store.cache.Add(string(o.key), o.value)
		}
	}
	b.batch.Reset()
	b.ops = nil
	return nil
}
