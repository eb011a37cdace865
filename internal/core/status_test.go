package core

import "testing"

func TestParseStatus(t *testing.T) {
	tests := []struct {
		input   string
		want    Status
		wantErr bool
	}{
		{"", StatusToDo, false},
		{"   ", StatusToDo, false},
		{"ToDo", StatusToDo, false},
		{"todo", StatusToDo, false},
		{"To Do", StatusToDo, false},
		{"need to start", StatusToDo, false},
		{"In Progress", StatusInProgress, false},
		{"inprogress", StatusInProgress, false},
		{"PROGRESS", StatusInProgress, false},
		{"Finished", StatusFinished, false},
		{"complete", StatusFinished, false},
		{" Done ", StatusFinished, false},
		{"Blocked", "", true},
		{"archived", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseStatus(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseStatus(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseStatus(%q) = %q, want %q", tt.input, got, tt.want)
			}
			if err != nil && KindOf(err) != KindValidation {
				t.Errorf("KindOf() = %v, want validation", KindOf(err))
			}
		})
	}
}

func TestStatusValid(t *testing.T) {
	for _, s := range Statuses() {
		if !s.Valid() {
			t.Errorf("%q.Valid() = false", s)
		}
		if got, err := ParseStatus(string(s)); err != nil || got != s {
			t.Errorf("ParseStatus(%q) = (%q, %v), want canonical round trip", s, got, err)
		}
	}
	if Status("done").Valid() {
		t.Error(`Status("done").Valid() = true, want false`)
	}
}
