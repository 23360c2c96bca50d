package interp

import "github.com/fuselang/fuse/internal/ast"

// execBlock runs a statement sequence in its own scope, returning
// nil on normal fallthrough or the first non-local-exit Signal produced.
func (e *Engine) execBlock(b *ast.Block, frame *Frame) *Signal {
	if b == nil {
		return nil
	}
	frame.push()
	defer frame.pop()
	for _, stmt := range b.Stmts {
		if sig := e.execStmt(stmt, frame); sig != nil {
			return sig
		}
	}
	return nil
}

func (e *Engine) execStmt(stmt ast.Stmt, frame *Frame) *Signal {
	switch s := stmt.(type) {
	case *ast.LetStmt:
		v, sig := e.evalExpr(s.Value, frame)
		if sig != nil {
			return sig
		}
		frame.declare(s.Name, v)
		return nil
	case *ast.ReturnStmt:
		if s.Value == nil {
			return &Signal{Kind: SigReturn}
		}
		v, sig := e.evalExpr(s.Value, frame)
		if sig != nil {
			return sig
		}
		return &Signal{Kind: SigReturn, Value: v}
	case *ast.IfStmt:
		for _, arm := range s.Arms {
			cond, sig := e.evalExpr(arm.Cond, frame)
			if sig != nil {
				return sig
			}
			if cond.Truthy() {
				return e.execBlock(arm.Block, frame)
			}
		}
		if s.Else != nil {
			return e.execBlock(s.Else, frame)
		}
		return nil
	case *ast.MatchStmt:
		return e.execMatch(s, frame)
	case *ast.ForStmt:
		return e.execFor(s, frame)
	case *ast.WhileStmt:
		return e.execWhile(s, frame)
	case *ast.BreakStmt:
		return &Signal{Kind: SigBreak}
	case *ast.ContinueStmt:
		return &Signal{Kind: SigContinue}
	case *ast.AssignStmt:
		return e.execAssign(s, frame)
	case *ast.ExprStmt:
		_, sig := e.evalExpr(s.Expr, frame)
		return sig
	}
	return runtimeErr("unknown statement %T", stmt)
}

func (e *Engine) execFor(s *ast.ForStmt, frame *Frame) *Signal {
	iter, sig := e.evalExpr(s.Iter, frame)
	if sig != nil {
		return sig
	}
	items, sig := iterableItems(iter)
	if sig != nil {
		return sig
	}
	for _, item := range items {
		frame.push()
		if sig := e.bindPattern(s.Pattern, item, frame); sig != nil {
			frame.pop()
			return sig
		}
		bsig := e.execBlock(s.Block, frame)
		frame.pop()
		if bsig != nil {
			if bsig.Kind == SigBreak {
				break
			}
			if bsig.Kind == SigContinue {
				continue
			}
			return bsig
		}
	}
	return nil
}

func (e *Engine) execWhile(s *ast.WhileStmt, frame *Frame) *Signal {
	for {
		cond, sig := e.evalExpr(s.Cond, frame)
		if sig != nil {
			return sig
		}
		if !cond.Truthy() {
			return nil
		}
		bsig := e.execBlock(s.Block, frame)
		if bsig != nil {
			if bsig.Kind == SigBreak {
				return nil
			}
			if bsig.Kind == SigContinue {
				continue
			}
			return bsig
		}
	}
}

func (e *Engine) execMatch(s *ast.MatchStmt, frame *Frame) *Signal {
	subject, sig := e.evalExpr(s.Subject, frame)
	if sig != nil {
		return sig
	}
	for _, c := range s.Cases {
		frame.push()
		if matchPattern(c.Pattern, subject, frame) {
			bsig := e.execBlock(c.Block, frame)
			frame.pop()
			return bsig
		}
		frame.pop()
	}
	return nil
}

func (e *Engine) execAssign(s *ast.AssignStmt, frame *Frame) *Signal {
	v, sig := e.evalExpr(s.Value, frame)
	if sig != nil {
		return sig
	}
	return e.assignTo(s.Target, v, frame)
}
