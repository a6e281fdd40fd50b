// Package services implements the business logic layer of the BMI dashboard.
// It sits between the HTTP handlers and the dataprocessing, storage and
// messaging packages.
//
// # Available Services
//
//   - DashboardService: owns the selection and the three summary tables,
//     recomputes them on every selection change and fans the result out
//   - HealthService: liveness, readiness and version information
//
// # Selection Lifecycle
//
// DashboardService.Init loads the datasets, restores the persisted
// selection and computes the first tables, broadcasting a system:status
// message at each phase. Every later SetSelection recomputes all three
// tables together. Either all of them change or none do.
//
//	svc := services.NewDashboardService(services.DashboardDeps{
//	    Loader:      loader,
//	    Sources:     sources,
//	    Broadcaster: hub,
//	    Store:       store,
//	    Logger:      logger,
//	})
//	if err := svc.Init(ctx); err != nil {
//	    return err
//	}
//	update, err := svc.SetSelection(ctx, domain.Selection{Sex: domain.SexMale})
//
// # Testing
//
// Collaborators are interfaces so tests can substitute testify mocks:
//
//	store := new(MockSelectionStore)
//	store.On("LoadSelection", mock.Anything).Return(domain.Selection{}, false, nil)
package services
