//go:build e2e

// End-to-end tests for fiche (agent) management: create, edit, and delete
// through the UI with API-backed verification.
package e2e

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/zerg-ai/jarvis-e2e/internal/browser"
	"github.com/zerg-ai/jarvis-e2e/internal/poll"
)

const (
	selFicheRow       = `[data-testid="fiche-row"]`
	selFicheName      = `[data-testid="fiche-name-input"]`
	selFicheInstr     = `[data-testid="fiche-instructions-input"]`
	selFicheModel     = `[data-testid="fiche-model-select"]`
	selNewFicheBtn    = `[data-testid="new-fiche-button"]`
	selSaveFicheBtn   = `[data-testid="save-fiche-button"]`
	selDeleteFicheBtn = `[data-testid="delete-fiche-button"]`
)

func TestFicheCreateViaUI(t *testing.T) {
	suite := NewSuite(t, "fiche-create")
	b := suite.Browser()

	suite.Step(1, "navigate to fiche list")
	if err := b.Navigate("/fiches"); err != nil {
		t.Fatalf("Step 1 failed: %v", err)
	}
	b.Screenshot("step1-fiche-list")

	suite.Step(2, "verify empty state after reset")
	if err := b.PollCount(selFicheRow, 5*time.Second, func(n int) bool { return n == 0 }); err != nil {
		t.Fatalf("Step 2 failed: %v", err)
	}

	suite.Step(3, "open the new-fiche form")
	if err := b.Click(selNewFicheBtn); err != nil {
		t.Fatalf("Step 3 failed: %v", err)
	}
	if err := b.WaitVisible(selFicheName); err != nil {
		t.Fatalf("Step 3 failed: %v", err)
	}

	name := "researcher-" + newScenarioID()
	suite.Step(4, "fill in and save the fiche")
	if err := b.TypeText(selFicheName, name); err != nil {
		t.Fatalf("Step 4 failed: %v", err)
	}
	if err := b.TypeText(selFicheInstr, "Research topics and summarize findings."); err != nil {
		t.Fatalf("Step 4 failed: %v", err)
	}
	err := b.ClickAndWaitResponse(selSaveFicheBtn, browser.ResponseMatch{
		Method:    http.MethodPost,
		URLSubstr: "/api/fiches",
		Status:    http.StatusCreated,
	}, 10*time.Second)
	if err != nil {
		t.Fatalf("Step 4 failed: %v", err)
	}
	b.Screenshot("step4-fiche-saved")

	suite.Step(5, "poll for the new row")
	if err := b.PollCount(selFicheRow, 10*time.Second, func(n int) bool { return n == 1 }); err != nil {
		t.Fatalf("Step 5 failed: %v", err)
	}

	suite.Step(6, "verify through the API")
	err = poll.UntilTimeout(context.Background(), 10*time.Second, 250*time.Millisecond,
		fmt.Sprintf("fiche %q visible via API", name),
		func(ctx context.Context) (bool, error) {
			fiches, err := suite.API().ListFiches(ctx)
			if err != nil {
				return false, err
			}
			for _, f := range fiches {
				if f.Name == name {
					return true, nil
				}
			}
			return false, nil
		})
	if err != nil {
		t.Fatalf("Step 6 failed: %v", err)
	}
}

func TestFicheDeleteViaUI(t *testing.T) {
	suite := NewSuite(t, "fiche-delete")
	b := suite.Browser()

	name := "doomed-" + newScenarioID()
	fiche := suite.MustCreateFiche(name, "temporary", "gpt-5")

	suite.Step(1, "navigate to fiche list")
	if err := b.Navigate("/fiches"); err != nil {
		t.Fatalf("Step 1 failed: %v", err)
	}

	suite.Step(2, "wait for the seeded row")
	if err := b.PollCount(selFicheRow, 10*time.Second, func(n int) bool { return n == 1 }); err != nil {
		t.Fatalf("Step 2 failed: %v", err)
	}

	suite.Step(3, "open the fiche and delete it")
	if err := b.Click(selFicheRow); err != nil {
		t.Fatalf("Step 3 failed: %v", err)
	}
	err := b.ClickAndWaitResponse(selDeleteFicheBtn, browser.ResponseMatch{
		Method:    http.MethodDelete,
		URLSubstr: "/api/fiches/" + fiche.ID,
	}, 10*time.Second)
	if err != nil {
		t.Fatalf("Step 3 failed: %v", err)
	}
	b.Screenshot("step3-fiche-deleted")

	suite.Step(4, "poll for the empty list")
	if err := b.PollCount(selFicheRow, 10*time.Second, func(n int) bool { return n == 0 }); err != nil {
		t.Fatalf("Step 4 failed: %v", err)
	}

	suite.Step(5, "verify deletion through the API")
	err = poll.UntilTimeout(context.Background(), 10*time.Second, 250*time.Millisecond,
		"fiche gone from API",
		func(ctx context.Context) (bool, error) {
			fiches, err := suite.API().ListFiches(ctx)
			if err != nil {
				return false, err
			}
			return len(fiches) == 0, nil
		})
	if err != nil {
		t.Fatalf("Step 5 failed: %v", err)
	}
}

func TestFicheValidationErrorsShown(t *testing.T) {
	suite := NewSuite(t, "fiche-validation")
	b := suite.Browser()

	suite.Step(1, "navigate and open the form")
	if err := b.Navigate("/fiches"); err != nil {
		t.Fatalf("Step 1 failed: %v", err)
	}
	if err := b.Click(selNewFicheBtn); err != nil {
		t.Fatalf("Step 1 failed: %v", err)
	}

	suite.Step(2, "save with an empty name and expect a 422")
	err := b.ClickAndWaitResponse(selSaveFicheBtn, browser.ResponseMatch{
		Method:    http.MethodPost,
		URLSubstr: "/api/fiches",
		Status:    http.StatusUnprocessableEntity,
	}, 10*time.Second)
	if err != nil {
		t.Fatalf("Step 2 failed: %v", err)
	}

	suite.Step(3, "poll for the inline validation message")
	err = b.PollText(`[data-testid="form-error"]`, 5*time.Second, func(text string) bool {
		return strings.Contains(strings.ToLower(text), "name")
	})
	if err != nil {
		t.Fatalf("Step 3 failed: %v", err)
	}
	b.Screenshot("step3-validation-error")
}
