package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/battswap/boothd/core/booth"
	"github.com/battswap/boothd/core/dispatch"
	"github.com/battswap/boothd/core/inventory"
	"github.com/battswap/boothd/core/model"
	"github.com/battswap/boothd/core/session"
	"github.com/battswap/boothd/core/telemetry"
	"github.com/battswap/boothd/infra/logger"
	"github.com/battswap/boothd/infra/mqtt"
	"github.com/battswap/boothd/internal/eventbus"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run an in-process deposit and withdrawal against a mock transport",
	RunE:  simulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)
}

// simulate walks one battery through the full deposit and withdrawal cycle
// without hardware, feeding synthetic telemetry after each command.
func simulate(cmd *cobra.Command, args []string) error {
	logg := logger.New("simulate")
	bus := eventbus.New()
	defer bus.Close()

	transport := mqtt.NewMockTransport()
	disp, err := dispatch.New(transport, 5*time.Second, logger.New("dispatch"), bus)
	if err != nil {
		return err
	}

	inv := inventory.New()
	if err := inv.AddBooth(inventory.Booth{ID: "b1", Name: "demo", ChargeCutoff: 95}); err != nil {
		return err
	}
	ref := model.SlotRef{BoothID: "b1", SlotID: "s1"}
	if _, err := inv.AddSlot(ref); err != nil {
		return err
	}

	store := telemetry.NewMemoryStore()
	mgr, err := booth.New(inv, store, telemetry.NewReconciler(30*time.Second), disp, bus, logg)
	if err != nil {
		return err
	}
	sessions, err := session.NewOrchestrator(mgr, logger.New("session"), bus)
	if err != nil {
		return err
	}
	mgr.SetSessionHook(sessions)

	ctx := context.Background()
	now := time.Now()
	snap := func(f func(*model.TelemetrySnapshot)) {
		now = now.Add(time.Second)
		s := model.TelemetrySnapshot{Slot: ref, Timestamp: now}
		f(&s)
		mgr.ApplyTelemetry(s)
	}

	sess, err := sessions.StartDeposit(ctx, "user-1", "b1")
	if err != nil {
		return err
	}
	logg.Infof("deposit session %s on %s", sess.ID, sess.Slot)

	// door opens, battery goes in, door closes and locks
	snap(func(s *model.TelemetrySnapshot) {})
	snap(func(s *model.TelemetrySnapshot) { s.BatteryInserted = true; s.BatteryUID = "batt-42"; s.SoC = 20 })
	snap(func(s *model.TelemetrySnapshot) { s.BatteryInserted = true; s.BatteryUID = "batt-42"; s.SoC = 20; s.DoorClosed = true })
	snap(func(s *model.TelemetrySnapshot) {
		s.BatteryInserted = true
		s.BatteryUID = "batt-42"
		s.SoC = 20
		s.DoorClosed = true
		s.DoorLocked = true
	})
	// charging until cutoff
	snap(func(s *model.TelemetrySnapshot) {
		s.BatteryInserted = true
		s.BatteryUID = "batt-42"
		s.SoC = 96
		s.DoorClosed = true
		s.DoorLocked = true
		s.RelayOn = true
	})
	st, _ := mgr.SlotState(ref)
	logg.Infof("slot %s is %s after charge", ref, st)

	wsess, err := sessions.StartWithdrawal(ctx, "user-1")
	if err != nil {
		return err
	}
	snap(func(s *model.TelemetrySnapshot) {
		s.BatteryInserted = true
		s.BatteryUID = "batt-42"
		s.SoC = 96
		s.DoorClosed = true
		s.DoorLocked = true
	})
	if err := sessions.ConfirmPayment(ctx, wsess.ID); err != nil {
		return err
	}
	snap(func(s *model.TelemetrySnapshot) {
		s.BatteryInserted = true
		s.BatteryUID = "batt-42"
		s.SoC = 96
		s.DoorClosed = true
	})
	// battery taken, door shut
	snap(func(s *model.TelemetrySnapshot) { s.DoorClosed = true })

	final, err := sessions.Session(wsess.ID)
	if err != nil {
		return err
	}
	st, _ = mgr.SlotState(ref)
	fmt.Printf("withdrawal %s finished %s, slot %s is %s, %d commands sent\n",
		final.ID, final.Status, ref, st, len(transport.Commands(ref)))
	return nil
}
