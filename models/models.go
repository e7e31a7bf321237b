package models

// This file serves as the central export point for all database models
// Import this package to access all model types

// All models are automatically exported from their respective files:
// - Account, Role from account.go
// - Category, TrainingProgram, ApprovalStatus from program.go
// - ProgramTrainee, EnrollmentStatus from enrollment.go

// Database schema overview:
// 1. accounts - Admin, company, supervisor and trainee identities; each
//    account carries at most one rotating refresh-token hash
// 2. categories - Program categories with a unique name index
// 3. training_programs - Company-owned programs moderated by admins
//    (pending/approved/rejected), optionally assigned to a supervisor
// 4. program_trainees - Trainee applications, composite key
//    (trainee_id, program_id) so a trainee can apply to a program once
