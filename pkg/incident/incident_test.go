package incident

import (
	"reflect"
	"testing"
)

func TestAppendCapped_DropsOldestBeyondCap(t *testing.T) {
	var ids []string
	for i := 0; i < 5; i++ {
		ids = appendCapped(ids, string(rune('a'+i)), 3)
	}
	want := []string{"c", "d", "e"}
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
}

func TestAppendCapped_UnderCapKeepsAll(t *testing.T) {
	ids := appendCapped([]string{"a"}, "b", 10)
	want := []string{"a", "b"}
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
}
