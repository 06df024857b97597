/*
LICENSE
  Copyright (C) 2024-2026 the Australian Ocean Lab (AusOcean)

  This is free software: you can redistribute it and/or modify it
  under the terms of the GNU General Public License as published by
  the Free Software Foundation, either version 3 of the License, or
  (at your option) any later version.

  It is distributed in the hope that it will be useful,
  but WITHOUT ANY WARRANTY; without even the implied warranty of
  MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
  GNU General Public License for more details.

  You should have received a copy of the GNU General Public License
  in gpl.txt. If not, see http://www.gnu.org/licenses/.
*/

package gauth

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

const projectID = "birdwatch"

func TestGetSecrets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets")
	err := os.WriteFile(path, []byte("mailjetPublicKey:pub\r\nmailjetPrivateKey:priv\n"), 0600)
	if err != nil {
		t.Fatal(err)
	}
	t.Setenv("BIRDWATCH_SECRETS", path)

	ctx := context.Background()
	secrets, err := GetSecrets(ctx, projectID, []string{"mailjetPublicKey", "mailjetPrivateKey"})
	if err != nil {
		t.Fatalf("GetSecrets failed: %v", err)
	}
	if secrets["mailjetPrivateKey"] != "priv" {
		t.Errorf("expected priv, got %q", secrets["mailjetPrivateKey"])
	}

	_, err = GetSecrets(ctx, projectID, []string{"mqPassword"})
	if err == nil {
		t.Errorf("expected error for missing key")
	}

	t.Setenv("BIRDWATCH_SECRETS", "")
	_, err = GetSecrets(ctx, projectID, nil)
	if err == nil {
		t.Errorf("expected error for undefined environment variable")
	}
}

func TestReadGoogleStorageBucketURL(t *testing.T) {
	_, err := ReadGoogleStorageBucket(context.Background(), "gs://bucket-only")
	if err == nil {
		t.Errorf("expected error for URL without object")
	}
	_, err = ReadGoogleStorageBucket(context.Background(), "/etc/secrets")
	if err == nil {
		t.Errorf("expected error for non-GSB URL")
	}
}
