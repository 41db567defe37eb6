package contract

// PreferencePair: 偏好学习样本（chosen/rejected 两段完整会话）。
type PreferencePair struct {
	Chosen   []Message `json:"chosen"`
	Rejected []Message `json:"rejected"`
	Source   string    `json:"source"`
}
