package moduletable

import (
	"os"
	"path/filepath"
	"testing"
)

func openTestTable(t *testing.T) *Table {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "modules")
	tbl, err := Open(Options{Path: dir, CreateAbsent: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { tbl.Close() })
	return tbl
}

func TestTable_AddQueryDelete(t *testing.T) {
	tbl := openTestTable(t)

	entry := Entry{Name: "Picker", IPCFile: "/tmp/picker.sock", Pid: os.Getpid(), Status: StatusRunning}
	if err := tbl.Add(entry); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if !tbl.Has("Picker") {
		t.Fatal("Has(Picker) = false")
	}

	got, err := tbl.Query("Picker")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if got != entry {
		t.Errorf("Query = %+v, want %+v", got, entry)
	}

	if err := tbl.Delete("Picker"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if tbl.Has("Picker") {
		t.Error("Has(Picker) = true after Delete")
	}
}

func TestTable_AddRejectsLiveDuplicate(t *testing.T) {
	tbl := openTestTable(t)
	entry := Entry{Name: "Picker", Pid: os.Getpid(), Status: StatusRunning}
	if err := tbl.Add(entry); err != nil {
		t.Fatalf("first Add: %v", err)
	}
	if err := tbl.Add(entry); err != ErrExists {
		t.Fatalf("second Add error = %v, want ErrExists", err)
	}
}

func TestTable_AddOverwritesDeadPid(t *testing.T) {
	tbl := openTestTable(t)
	// pid 999999 is vanishingly unlikely to be alive in any test
	// environment.
	dead := Entry{Name: "Picker", Pid: 999999, Status: StatusRunning}
	if err := tbl.Add(dead); err != nil {
		t.Fatalf("first Add: %v", err)
	}
	fresh := Entry{Name: "Picker", Pid: os.Getpid(), Status: StatusRunning}
	if err := tbl.Add(fresh); err != nil {
		t.Fatalf("Add over dead pid: %v", err)
	}
	got, err := tbl.Query("Picker")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if got.Pid != os.Getpid() {
		t.Errorf("Pid = %d, want overwritten to %d", got.Pid, os.Getpid())
	}
}

func TestTable_QueryAll(t *testing.T) {
	tbl := openTestTable(t)
	for _, name := range []string{"A", "B", "C"} {
		if err := tbl.Add(Entry{Name: name, Pid: os.Getpid()}); err != nil {
			t.Fatalf("Add(%s): %v", name, err)
		}
	}
	all, err := tbl.QueryAll()
	if err != nil {
		t.Fatalf("QueryAll: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("QueryAll returned %d entries, want 3", len(all))
	}
}

func TestTable_ReadOnlyRejectsMutation(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "modules")
	rw, err := Open(Options{Path: dir, CreateAbsent: true})
	if err != nil {
		t.Fatalf("Open rw: %v", err)
	}
	if err := rw.Add(Entry{Name: "Picker", Pid: os.Getpid()}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	rw.Close()

	ro, err := Open(Options{Path: dir, ReadOnly: true})
	if err != nil {
		t.Fatalf("Open ro: %v", err)
	}
	defer ro.Close()

	if err := ro.Add(Entry{Name: "Other", Pid: os.Getpid()}); err != ErrReadOnly {
		t.Fatalf("Add on read-only table error = %v, want ErrReadOnly", err)
	}
	if !ro.Has("Picker") {
		t.Error("read-only table should still see entries written before it opened")
	}
}
