package param

import "testing"

func TestRegisterReadWrite(t *testing.T) {
	m := New()
	key := Key{Index: 0x0010, Sub: 0}
	if err := m.Register(key, ReadWrite, false, 16, []byte("ACME")); err != nil {
		t.Fatalf("Register: %v", err)
	}

	var dst [16]byte
	n, err := m.Read(FromApplication, key, dst[:])
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(dst[:n]) != "ACME" {
		t.Fatalf("expected ACME, got %q", dst[:n])
	}

	if err := m.Write(FromApplication, key, []byte("XYZ")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	n, err = m.Read(FromApplication, key, dst[:])
	if err != nil || string(dst[:n]) != "XYZ" {
		t.Fatalf("expected XYZ after write, got %q err=%v", dst[:n], err)
	}
}

func TestReadOnlyRejectsWrite(t *testing.T) {
	m := New()
	key := Key{Index: 0x0020, Sub: 0}
	_ = m.Register(key, ReadOnly, false, 4, []byte{1})

	if err := m.Write(FromMaster, key, []byte{2}); err == nil {
		t.Fatalf("expected write to read-only slot to fail")
	}
}

func TestWriteOnlyRejectsRead(t *testing.T) {
	m := New()
	key := Key{Index: 0x0030, Sub: 0}
	_ = m.Register(key, WriteOnly, false, 4, nil)

	var dst [4]byte
	if _, err := m.Read(FromApplication, key, dst[:]); err == nil {
		t.Fatalf("expected read of write-only slot to fail")
	}
}

func TestMasterWriteFlagsInProgressForApplicationRead(t *testing.T) {
	m := New()
	key := Key{Index: 0x0080, Sub: 0}
	_ = m.Register(key, ReadWrite, true, 4, []byte{0})

	if err := m.Write(FromMaster, key, []byte{0x11}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var dst [4]byte
	_, err := m.Read(FromApplication, key, dst[:])
	if _, ok := err.(*ErrInProgress); !ok {
		t.Fatalf("expected ErrInProgress on application read racing a master write, got %v", err)
	}

	// Second read should succeed now that the flag was consumed.
	_, err = m.Read(FromApplication, key, dst[:])
	if err != nil {
		t.Fatalf("expected second read to succeed, got %v", err)
	}
}

func TestMasterReadNeverSeesInProgress(t *testing.T) {
	m := New()
	key := Key{Index: 0x0081, Sub: 0}
	_ = m.Register(key, ReadWrite, false, 4, []byte{0})
	_ = m.Write(FromMaster, key, []byte{1})

	var dst [4]byte
	if _, err := m.Read(FromMaster, key, dst[:]); err != nil {
		t.Fatalf("expected master read to never race itself, got %v", err)
	}
}

func TestPersistentKeysSortedDeterministically(t *testing.T) {
	m := New()
	_ = m.Register(Key{Index: 0x0050, Sub: 1}, ReadWrite, true, 4, nil)
	_ = m.Register(Key{Index: 0x0010, Sub: 0}, ReadWrite, true, 4, nil)
	_ = m.Register(Key{Index: 0x0010, Sub: 1}, ReadWrite, true, 4, nil)
	_ = m.Register(Key{Index: 0x0099, Sub: 0}, ReadWrite, false, 4, nil)

	keys := m.PersistentKeys()
	want := []Key{{0x0010, 0}, {0x0010, 1}, {0x0050, 1}}
	if len(keys) != len(want) {
		t.Fatalf("expected %d persistent keys, got %d: %v", len(want), len(keys), keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("at %d: want %s, got %s", i, want[i], keys[i])
		}
	}
}
