package widgets

// Button is a clickable label.
//
//affinity:guarded
type Button struct {
	text     string
	children []*Button
	clicks   []func()
}

func NewButton(text string) *Button {
	return &Button{text: text}
}

func (b *Button) SetText(s string) {
	b.text = s
}

func (b *Button) AddClickListener(f func()) {
	b.clicks = append(b.clicks, f)
}

//affinity:attach
func (b *Button) Add(child *Button) {
	b.children = append(b.children, child)
}
