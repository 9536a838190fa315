package services

import (
	"context"
	"testing"
	"time"

	"visitor-kiosk/models"
	"visitor-kiosk/store"
	"visitor-kiosk/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslatePurpose(t *testing.T) {
	assert.Equal(t, "ประชุมงาน", TranslatePurpose(models.PurposeMeeting, "", LangTH))
	assert.Equal(t, "Meeting", TranslatePurpose(models.PurposeMeeting, "", LangEN))
	assert.Equal(t, "อื่น ๆ: ตรวจเยี่ยม", TranslatePurpose(models.PurposeOther, "ตรวจเยี่ยม", LangTH))
	assert.Equal(t, "Other", TranslatePurpose(models.PurposeOther, "", LangEN))
	assert.Equal(t, "ประชุมงาน", TranslatePurpose(models.PurposeMeeting, "", "fr"))
	assert.Equal(t, "mystery", TranslatePurpose("mystery", "", LangEN))
}

func TestNormalizePurpose(t *testing.T) {
	cases := []struct {
		raw, other string
		want       models.Purpose
	}{
		{"meeting", "", models.Purpose{Tag: models.PurposeMeeting}},
		{"MEETING", "ignored", models.Purpose{Tag: models.PurposeMeeting}},
		{"ประชุมงาน", "", models.Purpose{Tag: models.PurposeMeeting}},
		{"ส่งของ / รับของ", "", models.Purpose{Tag: models.PurposeDelivery}},
		{"ส่งสินค้า/รับสินค้า", "", models.Purpose{Tag: models.PurposeDelivery}},
		{"อื่น ๆ: ติดต่อธุระ", "", models.Purpose{Tag: models.PurposeOther, Other: "ติดต่อธุระ"}},
		{"อื่นๆ", "ดูสถานที่", models.Purpose{Tag: models.PurposeOther, Other: "ดูสถานที่"}},
		{"other", "", models.Purpose{Tag: models.PurposeOther}},
		{"วางบิล/รับเช็ค", "", models.Purpose{Tag: models.PurposeOther, Other: "วางบิล/รับเช็ค"}},
		{"", "", models.Purpose{}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizePurpose(tc.raw, tc.other), tc.raw)
	}
}

func TestNormalizeLegacyPurposes(t *testing.T) {
	db := storetest.Open(t)
	st := store.NewGormVisitorStore(db, nil, nil)
	ctx := context.Background()

	for _, p := range []string{"ประชุมงาน", "meeting", "อื่น ๆ: ส่งเอกสาร", "ซ่อมบำรุง", "เยี่ยมชม"} {
		require.NoError(t, st.Insert(ctx, &models.Visitor{FullName: "x", Purpose: p, CheckinTime: time.Now()}))
	}

	n, err := NormalizeLegacyPurposes(ctx, st, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	rows, err := st.Query(ctx, store.Filter{}, 0)
	require.NoError(t, err)
	got := map[int64]string{}
	for _, r := range rows {
		got[r.ID] = r.Purpose + "|" + r.OtherPurpose
	}
	assert.Equal(t, map[int64]string{
		1: "meeting|",
		2: "meeting|",
		3: "other|ส่งเอกสาร",
		4: "maintenance|",
		5: "visit|",
	}, got)

	n, err = NormalizeLegacyPurposes(ctx, st, 2, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}
