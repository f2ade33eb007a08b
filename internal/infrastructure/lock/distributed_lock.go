package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ============================================================================
// 分布式锁实现
// ============================================================================
//
// 【为什么需要分布式锁？】
//
// 场景1：培训中心重复提交同一购买请求（网络抖动导致重复点击），
//        两个请求同时通过幂等检查后都会创建批次。
// 场景2：两个审核员同时审批同一个线下付款批次，
//        如果都通过前置校验，证书码会被铸造两次。
//
// 数据库的条件状态更新是最终兜底，分布式锁把并发收敛到锁粒度，
// 让第二个请求在入口处就观察到"已处理"。
//
// 【Redis 分布式锁原理】
//
// 加锁：SET key value NX EX timeout
//   - NX: 只有 key 不存在时才设置（保证互斥）
//   - EX: 设置过期时间（防止死锁）
//   - value: 锁持有者标识（释放时验证，防止误删别人的锁）
//
// 释放锁：使用 Lua 脚本保证原子性
//   - 先检查 value 是否是自己的
//   - 再删除 key
//
// ============================================================================

var (
	ErrLockFailed  = errors.New("获取分布式锁失败")
	ErrLockExpired = errors.New("锁已过期")
)

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string        // 锁的 key
	value      string        // 锁的 value（用于验证锁的持有者）
	expiration time.Duration // 锁的过期时间
}

// NewDistributedLock 创建分布式锁
func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 尝试获取锁（非阻塞）
//
// 【关键点】使用 SetNX 命令，只有当 key 不存在时才能设置成功
// 这保证了同一时刻只有一个客户端能获取到锁
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	success, err := l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
	if err != nil {
		return false, err
	}
	return success, nil
}

// Lock 阻塞式获取锁（带重试）
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		// 等待一段时间后重试
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
			// 继续重试
		}
	}
	return ErrLockFailed
}

// Unlock 释放锁
//
// 【关键点】使用 Lua 脚本保证"检查+删除"操作的原子性
//
// 为什么要检查 value？
//
//	场景：A 获取锁 -> A 处理超时，锁自动过期 -> B 获取锁 -> A 执行完毕，调用 Unlock
//	如果不检查 value，A 会把 B 的锁删掉！
func (l *DistributedLock) Unlock(ctx context.Context) error {
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	_, err := l.client.Eval(ctx, script, []string{l.key}, l.value).Result()
	return err
}

// ============================================================================
// 便捷函数
// ============================================================================

// NewPurchaseLock 创建购买锁（按培训中心维度）
// 同一培训中心的购买请求串行化，不同培训中心互不影响
func NewPurchaseLock(client *redis.Client, trainingCenterID int64, owner string) *DistributedLock {
	key := fmt.Sprintf("purchase:lock:tc:%d", trainingCenterID)
	return NewDistributedLock(client, key, owner, 30*time.Second)
}

// NewBatchApprovalLock 创建审批锁（按批次维度）
// 两个审核员同时审批同一批次时，后到者必须观察到"已处理"而不是重复铸码
func NewBatchApprovalLock(client *redis.Client, batchID int64, owner string) *DistributedLock {
	key := fmt.Sprintf("batch:approval:lock:%d", batchID)
	return NewDistributedLock(client, key, owner, 30*time.Second)
}

// NewTransferLock 创建转账锁（按转账单维度）
// 人工重试与定时任务重试同时到达时只放行一个
func NewTransferLock(client *redis.Client, transferID int64, owner string) *DistributedLock {
	key := fmt.Sprintf("transfer:lock:%d", transferID)
	return NewDistributedLock(client, key, owner, 30*time.Second)
}
