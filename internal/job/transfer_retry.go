package job

import (
	"context"
	"errors"
	"log"
	"time"

	"certmarket/internal/model"
	"certmarket/internal/repository"
	"certmarket/internal/service"

	"gorm.io/gorm"
)

// TransferRetryJob 转账重试任务
// 扫描到期可执行的转账单（新建的和退避到点的），
// 复用 TransferService.Execute，与人工重试走同一条路径
type TransferRetryJob struct {
	db           *gorm.DB
	transferRepo *repository.TransferRepository
	transferSvc  *service.TransferService
	stopCh       chan struct{}
	interval     time.Duration
	batchSize    int
}

func NewTransferRetryJob(db *gorm.DB, transferSvc *service.TransferService) *TransferRetryJob {
	return &TransferRetryJob{
		db:           db,
		transferRepo: repository.NewTransferRepository(db),
		transferSvc:  transferSvc,
		stopCh:       make(chan struct{}),
		interval:     30 * time.Second,
		batchSize:    50,
	}
}

func (j *TransferRetryJob) Start(ctx context.Context) {
	log.Println("[TransferRetryJob] 转账重试任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[TransferRetryJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[TransferRetryJob] 任务停止")
			return
		case <-ticker.C:
			j.processDueTransfers(ctx)
		}
	}
}

func (j *TransferRetryJob) Stop() {
	close(j.stopCh)
}

func (j *TransferRetryJob) processDueTransfers(ctx context.Context) {
	transfers, err := j.transferRepo.GetDue(ctx, time.Now(), j.batchSize)
	if err != nil {
		log.Printf("[TransferRetryJob] 查询到期转账单失败: %v", err)
		return
	}

	if len(transfers) == 0 {
		return
	}

	log.Printf("[TransferRetryJob] 发现 %d 个待执行转账单", len(transfers))

	for _, transfer := range transfers {
		if !transfer.CanRetry() {
			continue
		}
		_, err := j.transferSvc.Execute(ctx, transfer)
		if err != nil {
			// 抢占失败说明人工重试正在处理，不算异常
			if errors.Is(err, repository.ErrTransferNotClaimable) {
				continue
			}
			log.Printf("[TransferRetryJob] 执行转账失败: transferNo=%s, err=%v", transfer.TransferNo, err)
		}
	}
}

// TransferStuckCompensateJob 转账卡单补偿任务
// 进程在调用网关途中崩溃会把转账单遗留在 PROCESSING，
// 长时间未推进的翻回 RETRYING 交还给重试任务
type TransferStuckCompensateJob struct {
	db           *gorm.DB
	transferRepo *repository.TransferRepository
	stopCh       chan struct{}
	interval     time.Duration
	batchSize    int
	stuckAfter   time.Duration
}

func NewTransferStuckCompensateJob(db *gorm.DB) *TransferStuckCompensateJob {
	return &TransferStuckCompensateJob{
		db:           db,
		transferRepo: repository.NewTransferRepository(db),
		stopCh:       make(chan struct{}),
		interval:     time.Minute,
		batchSize:    50,
		stuckAfter:   5 * time.Minute,
	}
}

func (j *TransferStuckCompensateJob) Start(ctx context.Context) {
	log.Println("[TransferStuckCompensateJob] 补偿任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[TransferStuckCompensateJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[TransferStuckCompensateJob] 任务停止")
			return
		case <-ticker.C:
			j.compensateStuckTransfers(ctx)
		}
	}
}

func (j *TransferStuckCompensateJob) Stop() {
	close(j.stopCh)
}

func (j *TransferStuckCompensateJob) compensateStuckTransfers(ctx context.Context) {
	before := time.Now().Add(-j.stuckAfter)
	transfers, err := j.transferRepo.GetStuckProcessing(ctx, before, j.batchSize)
	if err != nil {
		log.Printf("[TransferStuckCompensateJob] 查询卡单失败: %v", err)
		return
	}

	if len(transfers) == 0 {
		return
	}

	log.Printf("[TransferStuckCompensateJob] 发现 %d 个卡在 PROCESSING 的转账单", len(transfers))

	for _, transfer := range transfers {
		// 网关是否已扣款不可知，翻回 RETRYING 由重试路径重新确认；
		// 中断的这次尝试照常计入 retry_count，网关可能已经被调用过
		err := j.transferRepo.MarkRetrying(ctx, transfer.ID, "卡单补偿: 进程中断", time.Now())
		if err != nil {
			log.Printf("[TransferStuckCompensateJob] 翻转状态失败: transferNo=%s, err=%v", transfer.TransferNo, err)
			continue
		}
		log.Printf("[TransferStuckCompensateJob] 卡单已交还重试: transferNo=%s, status=%s -> %s",
			transfer.TransferNo, model.TransferStatusProcessing, model.TransferStatusRetrying)
	}
}
