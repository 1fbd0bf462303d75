package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSecurityRelated(t *testing.T) {
	c := Default()

	tests := []struct {
		name string
		text string
		want bool
	}{
		{"access control reader", "门禁读卡器A", true},
		{"camera in sentence", "1F大厅摄像机", true},
		{"english mixed case", "Card Reader 03", true},
		{"cable code", "RVVP 4x0.5mm cable run", true},
		{"cable code lowercase", "rvvp 2x1.0", true},
		{"lighting fixture", "照明灯具A", false},
		{"air conditioner", "空调室内机", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.IsSecurityRelated(tt.text))
		})
	}
}

func TestIsWiringLabel(t *testing.T) {
	c := Default()

	tests := []struct {
		name string
		text string
		want bool
	}{
		{"cjk wire", "门禁电源线", true},
		{"cjk cable", "报警信号缆", true},
		{"rvv code", "门禁 RVV 2x1.0", true},
		{"english cable", "Camera CABLE tray", true},
		{"no cable term", "门禁读卡器A", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.IsWiringLabel(tt.text))
		})
	}
}

func TestNew_CustomKeywords(t *testing.T) {
	c := New([]string{"  Intercom ", ""}, []string{"CAT6"})

	assert.True(t, c.IsSecurityRelated("video INTERCOM panel"))
	assert.False(t, c.IsSecurityRelated("门禁"))
	assert.True(t, c.IsWiringLabel("cat6 drop"))
}
