package service

import (
	"context"
	"testing"
	"time"

	"certmarket/internal/model"
	"certmarket/internal/repository"

	"github.com/shopspring/decimal"
)

func TestComputeDiscount(t *testing.T) {
	cases := []struct {
		name string
		base string
		pct  string
		want string
	}{
		{name: "百分之十", base: "100.00", pct: "10", want: "10.00"},
		{name: "百分之二十", base: "1000.00", pct: "20", want: "200.00"},
		{name: "四舍五入", base: "99.99", pct: "33.33", want: "33.33"},
		{name: "全免", base: "100.00", pct: "100", want: "100.00"},
		{name: "零折扣", base: "100.00", pct: "0", want: "0.00"},
		{name: "负比例兜底", base: "100.00", pct: "-5", want: "0.00"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ComputeDiscount(decimal.RequireFromString(tc.base), decimal.RequireFromString(tc.pct))
			if !got.Equal(decimal.RequireFromString(tc.want)) {
				t.Fatalf("ComputeDiscount(%s, %s) = %s, 期望 %s", tc.base, tc.pct, got, tc.want)
			}
		})
	}
}

func TestDiscountValidate(t *testing.T) {
	db := newTestDB(t)
	acc, _ := seedParties(t, db)
	svc := NewDiscountService(db)
	ctx := context.Background()
	now := time.Now()

	seedDiscount(t, db, &model.DiscountCode{
		AccID:              acc.ID,
		Code:               "SUMMER20",
		DiscountType:       model.DiscountTypeTimeLimited,
		DiscountPercentage: decimal.NewFromInt(20),
		StartDate:          timePtr(now.Add(-time.Hour)),
		EndDate:            timePtr(now.Add(time.Hour)),
	})
	seedDiscount(t, db, &model.DiscountCode{
		AccID:              acc.ID,
		Code:               "EXPIRED10",
		DiscountType:       model.DiscountTypeTimeLimited,
		DiscountPercentage: decimal.NewFromInt(10),
		StartDate:          timePtr(now.Add(-48 * time.Hour)),
		EndDate:            timePtr(now.Add(-24 * time.Hour)),
	})
	seedDiscount(t, db, &model.DiscountCode{
		AccID:              acc.ID,
		Code:               "LIMITED5",
		DiscountType:       model.DiscountTypeQuantityBased,
		DiscountPercentage: decimal.NewFromInt(5),
		TotalQuantity:      1,
		UsedQuantity:       1,
	})
	seedDiscount(t, db, &model.DiscountCode{
		AccID:              acc.ID,
		Code:               "COURSE7",
		DiscountType:       model.DiscountTypeQuantityBased,
		DiscountPercentage: decimal.NewFromInt(15),
		TotalQuantity:      10,
		ApplicableCourses:  "7,8",
	})

	cases := []struct {
		name       string
		code       string
		courseID   int64
		wantValid  bool
		wantReason string
	}{
		{name: "有效限时折扣", code: "SUMMER20", courseID: 1, wantValid: true},
		{name: "不存在", code: "NOPE", courseID: 1, wantValid: false, wantReason: DiscountReasonNotFound},
		{name: "已过期", code: "EXPIRED10", courseID: 1, wantValid: false, wantReason: DiscountReasonExpired},
		{name: "已用尽", code: "LIMITED5", courseID: 1, wantValid: false, wantReason: DiscountReasonDepleted},
		{name: "课程不适用", code: "COURSE7", courseID: 9, wantValid: false, wantReason: DiscountReasonNotApplicable},
		{name: "课程适用", code: "COURSE7", courseID: 7, wantValid: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := svc.Validate(ctx, tc.code, acc.ID, tc.courseID, now)
			if err != nil {
				t.Fatalf("校验出错: %v", err)
			}
			if result.Valid != tc.wantValid {
				t.Fatalf("valid = %v, 期望 %v (reason=%s)", result.Valid, tc.wantValid, result.Reason)
			}
			if !tc.wantValid && result.Reason != tc.wantReason {
				t.Fatalf("reason = %s, 期望 %s", result.Reason, tc.wantReason)
			}
		})
	}
}

// 限量折扣最后一个名额被并发消耗后，第二次消耗必须失败
func TestDiscountConsumeDepletion(t *testing.T) {
	db := newTestDB(t)
	acc, _ := seedParties(t, db)
	svc := NewDiscountService(db)
	ctx := context.Background()

	dc := seedDiscount(t, db, &model.DiscountCode{
		AccID:              acc.ID,
		Code:               "LAST1",
		DiscountType:       model.DiscountTypeQuantityBased,
		DiscountPercentage: decimal.NewFromInt(10),
		TotalQuantity:      1,
	})

	if err := svc.Consume(ctx, nil, dc); err != nil {
		t.Fatalf("第一次消耗失败: %v", err)
	}
	if err := svc.Consume(ctx, nil, dc); err != repository.ErrDiscountDepleted {
		t.Fatalf("第二次消耗应返回 ErrDiscountDepleted, 实际 %v", err)
	}

	// 用尽后状态翻转为 DEPLETED
	var fresh model.DiscountCode
	if err := db.Where("id = ?", dc.ID).First(&fresh).Error; err != nil {
		t.Fatalf("查询折扣码失败: %v", err)
	}
	if fresh.UsedQuantity != 1 {
		t.Fatalf("used_quantity = %d, 期望 1", fresh.UsedQuantity)
	}
	if fresh.Status != model.DiscountStatusDepleted {
		t.Fatalf("status = %s, 期望 DEPLETED", fresh.Status)
	}
}

func TestCreateDiscountValidation(t *testing.T) {
	db := newTestDB(t)
	acc, _ := seedParties(t, db)
	svc := NewDiscountService(db)
	ctx := context.Background()
	now := time.Now()

	cases := []struct {
		name    string
		dc      model.DiscountCode
		wantErr bool
	}{
		{
			name: "合法限时折扣",
			dc: model.DiscountCode{
				AccID: acc.ID, Code: "OK1", DiscountType: model.DiscountTypeTimeLimited,
				DiscountPercentage: decimal.NewFromInt(10),
				StartDate:          timePtr(now), EndDate: timePtr(now.Add(time.Hour)),
			},
		},
		{
			name: "限时折扣缺结束时间",
			dc: model.DiscountCode{
				AccID: acc.ID, Code: "BAD1", DiscountType: model.DiscountTypeTimeLimited,
				DiscountPercentage: decimal.NewFromInt(10), StartDate: timePtr(now),
			},
			wantErr: true,
		},
		{
			name: "限量折扣数量为零",
			dc: model.DiscountCode{
				AccID: acc.ID, Code: "BAD2", DiscountType: model.DiscountTypeQuantityBased,
				DiscountPercentage: decimal.NewFromInt(10),
			},
			wantErr: true,
		},
		{
			name: "比例超过100",
			dc: model.DiscountCode{
				AccID: acc.ID, Code: "BAD3", DiscountType: model.DiscountTypeQuantityBased,
				DiscountPercentage: decimal.NewFromInt(101), TotalQuantity: 5,
			},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dc := tc.dc
			err := svc.CreateDiscount(ctx, &dc)
			if tc.wantErr && err == nil {
				t.Fatalf("期望错误, 实际为 nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("期望成功, 实际 %v", err)
			}
		})
	}
}
