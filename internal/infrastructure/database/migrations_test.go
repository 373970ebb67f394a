package database

import (
	"io/fs"
	"strings"
	"testing"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		t.Fatalf("falha ao ler migrações embutidas: %v", err)
	}

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	if len(ups) == 0 {
		t.Fatal("nenhuma migração encontrada")
	}
	for v := range ups {
		if !downs[v] {
			t.Errorf("migração %s sem down", v)
		}
	}
}

func TestUniqueConstraintsDeclared(t *testing.T) {
	data, err := fs.ReadFile(migrationsFS, "migrations/000001_init_dfe.up.sql")
	if err != nil {
		t.Fatalf("falha ao ler migração: %v", err)
	}
	sql := string(data)
	for _, c := range []string{"UNIQUE (chave)", "UNIQUE (company_id, chave, tp_evento)"} {
		if !strings.Contains(sql, c) {
			t.Errorf("restrição %q ausente", c)
		}
	}
}
