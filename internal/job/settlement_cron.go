package job

import (
	"context"
	"log"
	"time"

	"certmarket/internal/config"
	"certmarket/internal/repository"
	"certmarket/internal/service"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// 系统触发的结算在台账事件里用 0 标识操作者
const systemActorID = 0

// SettlementCronJob 月度结算调度
// 按配置的 cron 表达式（默认每月1号凌晨）对所有有效认证机构
// 结算上一个自然月
type SettlementCronJob struct {
	db            *gorm.DB
	cfg           *config.Config
	partyRepo     *repository.PartyRepository
	settlementSvc *service.SettlementService
	cron          *cron.Cron
}

func NewSettlementCronJob(db *gorm.DB, cfg *config.Config, settlementSvc *service.SettlementService) *SettlementCronJob {
	return &SettlementCronJob{
		db:            db,
		cfg:           cfg,
		partyRepo:     repository.NewPartyRepository(db),
		settlementSvc: settlementSvc,
		cron:          cron.New(),
	}
}

func (j *SettlementCronJob) Start(ctx context.Context) error {
	spec := j.cfg.Business.SettlementCron
	if spec == "" {
		spec = "0 3 1 * *"
	}

	_, err := j.cron.AddFunc(spec, func() {
		j.RunOnce(ctx)
	})
	if err != nil {
		return err
	}

	j.cron.Start()
	log.Printf("[SettlementCronJob] 月度结算调度启动: cron=%s", spec)
	return nil
}

func (j *SettlementCronJob) Stop() {
	stopCtx := j.cron.Stop()
	<-stopCtx.Done()
	log.Println("[SettlementCronJob] 调度已停止")
}

// RunOnce 对所有有效机构结算上一个自然月
// 单个机构的补结算走 SettlementService.SettleMonth
func (j *SettlementCronJob) RunOnce(ctx context.Context) {
	prev := time.Now().UTC().AddDate(0, -1, 0)
	year, month := prev.Year(), prev.Month()

	accIDs, err := j.partyRepo.ListActiveACCIDs(ctx)
	if err != nil {
		log.Printf("[SettlementCronJob] 查询机构列表失败: %v", err)
		return
	}

	log.Printf("[SettlementCronJob] 开始结算 %d-%02d, 机构数=%d", year, int(month), len(accIDs))

	for _, accID := range accIDs {
		result, err := j.settlementSvc.SettleMonth(ctx, accID, year, month, systemActorID)
		if err != nil {
			// 单个机构失败不阻塞其余机构，下个周期或人工补结算
			log.Printf("[SettlementCronJob] 机构结算失败: accID=%d, err=%v", accID, err)
			continue
		}
		if result.EntryCount > 0 {
			log.Printf("[SettlementCronJob] 机构结算完成: accID=%d, 条目=%d, 应付=%s",
				accID, result.EntryCount, result.PayoutAmount.String())
		}
	}
}
