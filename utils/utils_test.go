package utils

import (
	"math/rand"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
)

func TestWaitWithDebugPrints(t *testing.T) {
	// Use a waitgroup and random goroutines to test WaitWithDebugPrints
	wg := sync.WaitGroup{}
	timeout := 1 * time.Second
	level := 2

	// Use goroutines with random duration
	for i := 1; i <= 5; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()
			r := rand.Intn(3)
			time.Sleep(time.Duration(r) * time.Second)
		}()
	}
	WaitWithDebugPrints(&wg, timeout, level)

	// Check if the wait group finished successfully
	wg.Wait()
}

func TestWaitForFileCreation(t *testing.T) {
	testDir := path.Join(t.TempDir(), "testBase")

	// Setup the test directory to write the test file
	err := setupTestDirs(testDir)
	if err != nil {
		t.Fatalf("Failed to setup test directory: %v", err)
	}

	// Make a goroutine that waits for the test file to be created
	waitErrorChan := make(chan error)
	go func() {
		t.Logf("Testing wait for file creation on path: %v", testDir)

		err := WaitForFileCreation(testDir, "test-file.txt", 10*time.Second, nil)
		waitErrorChan <- err
	}()

	// Make another goroutine that writes the test file
	writeErrorChan := make(chan error)
	go func() {
		// Sleep to give some time to the file watcher to start
		time.Sleep(2 * time.Second)
		err := writeTestFile(testDir)
		writeErrorChan <- err
	}()

	// Check if WaitForFileCreation finished without any errors
	err = <-waitErrorChan
	if err != nil {
		t.Errorf("Error waiting for file creation: %v", err)
	}

	// Check if writeTestFile finished without any errors
	err = <-writeErrorChan
	if err != nil {
		t.Errorf("Error writing file: %v", err)
	}
}

func TestWaitForFileCreationTimeout(t *testing.T) {
	testDir := path.Join(t.TempDir(), "testBase")

	// Setup the test directory to write the test file
	err := setupTestDirs(testDir)
	if err != nil {
		t.Fatalf("Failed to setup test directory: %v", err)
	}

	// Wait for a file to be created, send a short timeout to test
	t.Logf("Testing wait for file creation on path: %v", testDir)
	err = WaitForFileCreation(testDir, "test-file.txt", 1*time.Second, nil)

	// Verify that we received an error because of the timeout
	if err == nil {
		t.Errorf("Expected timeout error, received nil")
	}
}

func TestSliceUtils(t *testing.T) {
	// PrintSlice truncates to the first n elements
	stringSlice := []string{"basic", "second", "tritium"}
	if got := PrintSlice(stringSlice, 2); got != "basic, second" {
		t.Errorf("expected truncated slice print to be %q, got %q", "basic, second", got)
	}
	if got := PrintSlice(stringSlice, 10); got != "basic, second, tritium" {
		t.Errorf("expected full slice print to be %q, got %q", "basic, second, tritium", got)
	}

	// StringSliceContains on the same fixture
	if !StringSliceContains(stringSlice, "second") {
		t.Errorf("expected string slice to contain %q", "second")
	}
	if StringSliceContains(stringSlice, "premtritium") {
		t.Errorf("expected string slice to not contain %q", "premtritium")
	}
}

// setupTestDirs creates a test directory on the received path
func setupTestDirs(testDir string) error {
	if err := Fs.MkdirAll(testDir, 0777); err != nil {
		return MakeError("failed to create test dir %s: %v", testDir, err)
	}

	return nil
}

// writeTestFile creates a test file on the given directory.
func writeTestFile(testDir string) error {
	filePath := path.Join(testDir, "test-file.txt")
	fileContents := Sprintf("This is test-file with path %s", filePath)

	err := afero.WriteFile(Fs, filePath, []byte(fileContents), 0777)
	if err != nil {
		return MakeError("failed to write to file %s: %v", filePath, err)
	}

	return nil
}
