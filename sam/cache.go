package sam

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// EmbeddingCache 图片特征缓存, 未命中时返回 nil, nil
type EmbeddingCache interface {
	Get(ctx context.Context, key string) (*Embedding, error)
	Set(ctx context.Context, key string, e *Embedding) error
}

// RedisCache 基于 Redis 的图片特征缓存
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ EmbeddingCache = (*RedisCache)(nil)

// NewRedisCache 创建 Redis 缓存, ttl 为 0 表示不过期
func NewRedisCache(client redis.UniversalClient, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client: client,
		prefix: "sam:embedding:",
		ttl:    ttl,
	}
}

// Get 从缓存获取图片特征
func (c *RedisCache) Get(ctx context.Context, key string) (*Embedding, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // 缓存未命中
		}
		return nil, err
	}
	return UnmarshalEmbedding(data)
}

// Set 写入图片特征
func (c *RedisCache) Set(ctx context.Context, key string, e *Embedding) error {
	return c.client.Set(ctx, c.prefix+key, MarshalEmbedding(e), c.ttl).Err()
}

// MarshalEmbedding 序列化: uint32 维数, int64 各维, float32 数据, 均为小端
func MarshalEmbedding(e *Embedding) []byte {
	buf := make([]byte, 4+8*len(e.Shape)+4*len(e.Data))
	binary.LittleEndian.PutUint32(buf, uint32(len(e.Shape)))
	off := 4
	for _, d := range e.Shape {
		binary.LittleEndian.PutUint64(buf[off:], uint64(d))
		off += 8
	}
	for _, v := range e.Data {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v))
		off += 4
	}
	return buf
}

// UnmarshalEmbedding 反序列化并校验形状与数据长度
func UnmarshalEmbedding(data []byte) (*Embedding, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("缓存数据过短: %d", len(data))
	}
	ndim := int(binary.LittleEndian.Uint32(data))
	off := 4
	if ndim <= 0 || len(data) < off+8*ndim {
		return nil, fmt.Errorf("缓存数据维度无效: %d", ndim)
	}

	shape := make([]int64, ndim)
	count := int64(1)
	limit := int64(len(data)-4-8*ndim) / 4
	for i := range shape {
		shape[i] = int64(binary.LittleEndian.Uint64(data[off:]))
		off += 8
		// 逐维限制元素数, 避免乘法溢出
		if shape[i] <= 0 || shape[i] > limit || count > limit/shape[i] {
			return nil, fmt.Errorf("缓存数据形状无效: %v", shape[:i+1])
		}
		count *= shape[i]
	}

	if int64(len(data)-off) != count*4 {
		return nil, fmt.Errorf("缓存数据长度与形状 %v 不匹配", shape)
	}
	values := make([]float32, count)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
		off += 4
	}
	return &Embedding{Data: values, Shape: shape}, nil
}
